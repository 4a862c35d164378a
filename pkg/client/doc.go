// Package client is a Go client for the asynccts HTTP API.
//
// A search is submitted once and polled until its hits are ready:
//
//	c, _ := client.New("http://localhost:8080", client.WithAPIKey(token))
//	resp, _ := c.Submit(ctx, asynccts.Artifact{Type: "net.ip", Value: "10.0.0.1"})
//	for resp.Pending() {
//	    time.Sleep(resp.RetryAfter())
//	    resp, _ = c.Poll(ctx, resp.ID)
//	}
//
// Await wraps that loop.
package client
