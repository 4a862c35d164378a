// Package asynccts runs an asynchronous search coordinator with a result
// cache in front of a pluggable searcher.
//
// A client submits an artifact (a URL, an IP address, a file hash) and gets
// back either the cached hits or a search id with a retry interval. The
// searcher runs in the background; polling the id returns the hits once it
// finishes. Results stay cached for a configurable TTL.
//
// # Embedding
//
//	svc, err := asynccts.New(asynccts.SearcherFunc(
//	    func(ctx context.Context, q asynccts.Query) ([]asynccts.Property, error) {
//	        return []asynccts.Property{
//	            asynccts.StringProperty("verdict", lookup(q.Artifact.Value)),
//	        }, nil
//	    }),
//	    asynccts.WithSQLite("/var/lib/asynccts/cts.db"),
//	    asynccts.WithServiceID("intel"),
//	)
//	defer svc.Close()
//	_ = svc.Run(ctx)
//
// # Storage
//
// Active searches and results live in Redis, Valkey or SQLite. Several
// services can share one database as long as their ids differ.
package asynccts
