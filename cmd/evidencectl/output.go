package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/jmerrifield20/EvidenceLedger/pkg/client"
	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAck(w io.Writer, ack *client.SubmitAck) error {
	if format == "json" {
		return writeJSON(w, ack)
	}
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), ack.Message)
	if ack.EvidenceID != "" {
		fmt.Fprintf(w, "Evidence ID: %s\n", ack.EvidenceID)
	}
	if ack.Version != "" {
		fmt.Fprintf(w, "Version:     %s\n", ack.Version)
	}
	printHashes(w, ack.Hashes)
	return nil
}

func printRecord(w io.Writer, rec *evidence.Record) error {
	if format == "json" {
		return writeJSON(w, rec)
	}
	fmt.Fprintf(w, "Evidence ID: %s\n", rec.EvidenceID)
	fmt.Fprintf(w, "Version:     %s\n", rec.Version)
	fmt.Fprintf(w, "Timestamp:   %s\n", rec.Timestamp)
	fmt.Fprintf(w, "Collector:   %s\n", rec.Collector)
	fmt.Fprintf(w, "Description: %s\n", rec.Description)
	printHashes(w, rec.Hashes())
	return nil
}

func printHashes(w io.Writer, h evidence.HashFields) {
	for _, alg := range evidence.Algorithms {
		if d := h.Get(alg); d != "" {
			fmt.Fprintf(w, "%-12s %s\n", alg+":", d)
		}
	}
}

func printRecords(w io.Writer, recs []evidence.Record) error {
	if format == "json" {
		return writeJSON(w, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no evidence")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVIDENCE ID\tVERSION\tTIMESTAMP\tCOLLECTOR\tSHA256\tDESCRIPTION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.EvidenceID, r.Version, r.Timestamp, r.Collector, r.SHA256, r.Description)
	}
	return tw.Flush()
}

// printVerify writes one line per digest and returns the number of
// mismatches.
func printVerify(w io.Writer, rec *evidence.Record, local evidence.HashFields) int {
	type row struct {
		Algorithm string `json:"algorithm"`
		Ledger    string `json:"ledger"`
		Local     string `json:"local"`
		Match     bool   `json:"match"`
	}
	rows := make([]row, 0, len(evidence.Algorithms))
	mismatches := 0
	for _, alg := range evidence.Algorithms {
		r := row{Algorithm: string(alg), Ledger: rec.Hashes().Get(alg), Local: local.Get(alg)}
		r.Match = r.Ledger == r.Local
		if !r.Match {
			mismatches++
		}
		rows = append(rows, r)
	}

	if format == "json" {
		_ = writeJSON(w, struct {
			EvidenceID string           `json:"evidenceID"`
			Version    evidence.Version `json:"version"`
			Digests    []row            `json:"digests"`
		}{rec.EvidenceID, rec.Version, rows})
		return mismatches
	}

	fmt.Fprintf(w, "Evidence %s, version %s\n", rec.EvidenceID, rec.Version)
	for _, r := range rows {
		mark := color.GreenString("✓")
		if !r.Match {
			mark = color.RedString("✗")
		}
		fmt.Fprintf(w, "  %s %-7s %s\n", mark, r.Algorithm, r.Ledger)
	}
	return mismatches
}
