// Package evidence defines the evidence record contract shared by the ledger
// client and the reference ledger.
//
// A Record is one immutable version of an evidence item: caller metadata plus
// the four content digests (MD5, SHA-1, SHA-256, SHA-512) of the submitted
// file. A History is every version of one identifier in the order the ledger
// delivered it, and a Collection is the latest version of every identifier.
//
// # Wire format
//
// Every read endpoint of the ledger answers with an Envelope:
//
//	{"code": "200", "message": "Query successful!", "result": "<encoded records>"}
//
// The result is usually a JSON document encoded a second time as a string.
// The Decode* functions accept that form and also an embedded JSON value, and
// they never return a partially populated result: either every mandatory field
// of every record is present and well formed, or the call fails with an error
// wrapping ErrMalformed.
//
//	env, err := evidence.DecodeEnvelope(body)
//	if err != nil {
//	    return err
//	}
//	if !env.OK() {
//	    return fmt.Errorf("ledger rejected request: %s", env.Message)
//	}
//	hist, err := evidence.DecodeHistoryResult(env.Result, "E1")
package evidence
