package domain

// KeyPrefix is the namespace for every key the service writes to a shared store.
const KeyPrefix = "asynccts:"
