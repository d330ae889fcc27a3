// Package client is the Go SDK for the evidence custody ledger.
//
// It submits evidence (a file plus metadata) and reads back the latest
// record, the full version history, or the latest record of every item. Each
// call is one independent HTTP exchange: the client keeps no cache and no
// session, so a *Client may be shared by any number of goroutines.
//
// # Submitting evidence
//
//	c, err := client.New("http://localhost:9099")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ack, err := c.Submit(ctx, client.SubmitRequest{
//	    EvidenceID:  "E1",
//	    File:        image,
//	    FileName:    "disk.img",
//	    Timestamp:   "2024-01-01T00:00:00Z",
//	    Collector:   "alice",
//	    Description: "disk image",
//	})
//
// The four digests are computed locally before upload. If the ledger echoes
// its own digests and they differ, Submit fails with ErrIntegrity.
//
// # Reading
//
//	rec, err := c.QueryEvidence(ctx, "E1")
//	hist, err := c.QueryHistory(ctx, "E1")   // oldest first, as delivered
//	all, err := c.QueryAll(ctx)
//
// # Errors
//
// Every failure is a *Error whose Kind says what went wrong. Branch with
// errors.Is against the sentinels:
//
//	switch {
//	case errors.Is(err, client.ErrNotFound):
//	    // the ledger has never seen this identifier
//	case errors.Is(err, client.ErrTransport):
//	    // could not reach the ledger
//	case errors.Is(err, client.ErrServer):
//	    // the ledger answered but rejected the request
//	case errors.Is(err, client.ErrDecode):
//	    // the ledger answered with records that are incomplete or malformed
//	}
//
// # Retries
//
// The client never retries. Wrap it when a policy is wanted:
//
//	api := client.NewRetrying(c, client.RetryPolicy{MaxAttempts: 3})
package client
