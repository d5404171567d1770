package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"commitledger.dev/ledger"
	"commitledger.dev/node"
	"commitledger.dev/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	sub := args[0]
	rest := args[1:]
	switch sub {
	case "init":
		return runInit(rest, stdout, stderr)
	case "commit":
		return runCommit(rest, stdout, stderr)
	case "get":
		return runGet(rest, stdout, stderr)
	case "list":
		return runList(rest, stdout, stderr)
	case "status":
		return runStatus(rest, stdout, stderr)
	case "anchors":
		return runAnchors(rest, stdout, stderr)
	case "wallet":
		return runWallet(rest, stdout, stderr)
	case "refresh":
		return runRefresh(rest, stdout, stderr)
	case "prove":
		return runProve(rest, stdout, stderr)
	case "export-proof":
		return runExportProof(rest, stdout, stderr)
	case "verify", "offline-verify":
		return runVerify(rest, stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown subcommand %q\n", sub)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `commitledger-node <command> [flags]

commands:
  init          create a data directory and identity key
  commit        append a new commitment
  get           fetch one commitment by id
  list          query commitments
  status        print tree/anchor summary
  anchors       list recorded anchors
  wallet        build, broadcast, and record the next anchor (dry-run wallet by default)
  refresh       poll confirmations for recorded anchors
  prove         regenerate and print an inclusion proof for a commitment
  export-proof  write a self-contained proof bundle to a file
  verify        verify a proof bundle offline, no data directory required`)
}

// dataDirFlags wires the -datadir flag every subcommand that opens a
// Store shares.
func dataDirFlags(fs *flag.FlagSet) *string {
	return fs.String("datadir", node.DefaultDataDir(), "node data directory")
}

func openStore(datadir string, stderr io.Writer) (*node.Store, int) {
	cfg := node.DefaultConfig()
	cfg.DataDir = datadir
	s, err := node.Open(cfg, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open failed: %v\n", err)
		return nil, 2
	}
	return s, 0
}

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	_, _ = fmt.Fprintf(stdout, "initialized data directory %s\n", *datadir)
	_, _ = fmt.Fprintf(stdout, "public key: %s\n", s.PublicKey())
	return 0
}

func runCommit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	typ := fs.String("type", "", "commitment type: agreement|attestation|state|custom")
	subject := fs.String("subject", "", "payload subject")
	content := fs.String("content", "", "payload content")
	counterparty := fs.String("counterparty", "", "payload counterparty (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	payload := ledger.Payload{Subject: *subject, Content: *content}
	if *counterparty != "" {
		payload.Counterparty = counterparty
	}

	c, err := s.Commit(ledger.CommitmentType(*typ), payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "commit failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, c)
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	id := fs.String("id", "", "commitment id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	c, ok, err := s.Get(*id)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "get failed: %v\n", err)
		return 2
	}
	if !ok {
		_, _ = fmt.Fprintf(stderr, "commitment %q not found\n", *id)
		return 1
	}
	return printJSON(stdout, stderr, c)
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	typ := fs.String("type", "", "filter by commitment type")
	subject := fs.String("subject", "", "filter by subject substring")
	counterparty := fs.String("counterparty", "", "filter by exact counterparty")
	since := fs.Int64("since", 0, "filter by timestamp >= (ms since epoch)")
	until := fs.Int64("until", 0, "filter by timestamp <= (ms since epoch)")
	limit := fs.Int("limit", 20, "max results, 1..100")
	offset := fs.Int("offset", 0, "pagination offset")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	filter := store.QueryFilter{
		Type:         ledger.CommitmentType(*typ),
		Subject:      *subject,
		Counterparty: *counterparty,
		Since:        *since,
		Until:        *until,
		Limit:        *limit,
		Offset:       *offset,
	}
	results, err := s.Query(filter)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, results)
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	stats, err := s.Stats()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "status failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, stats)
}

func runAnchors(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("anchors", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	anchors, err := s.ListAnchors()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anchors failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, anchors)
}

func runWallet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wallet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	txid := fs.String("txid", "", "record an anchor with a txid obtained out of band instead of broadcasting")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	var (
		anchor ledger.Anchor
		err    error
	)
	if *txid != "" {
		anchor, err = s.RecordAnchor(*txid)
	} else {
		anchor, err = s.Anchor(context.Background())
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, anchor)
}

func runRefresh(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	anchorIndex := fs.Int64("anchor-index", -1, "refresh a single anchor index; omit to poll all unconfirmed anchors")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if *anchorIndex >= 0 {
		anchor, err := s.RefreshAnchor(ctx, *anchorIndex)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "refresh failed: %v\n", err)
			return 2
		}
		return printJSON(stdout, stderr, anchor)
	}

	refreshed, err := s.PollConfirmations(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "refresh failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, refreshed)
}

// proofBundle is the export-proof/verify file contract: a commitment,
// its inclusion proof, and the anchor that binds it, self-contained and
// readable by a process with no data directory at all.
type proofBundle struct {
	Commitment ledger.Commitment `json:"commitment"`
	Proof      ledger.Proof      `json:"proof"`
	Anchor     ledger.Anchor     `json:"anchor"`
	PublicKey  string            `json:"publicKey,omitempty"`
}

func runProve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	id := fs.String("id", "", "commitment id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	c, proof, anchor, err := s.Prove(*id)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "prove failed: %v\n", err)
		return 2
	}
	return printJSON(stdout, stderr, proofBundle{Commitment: c, Proof: proof, Anchor: anchor, PublicKey: s.PublicKey()})
}

func runExportProof(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export-proof", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := dataDirFlags(fs)
	id := fs.String("id", "", "commitment id")
	out := fs.String("out", "", "path to write the proof bundle to")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" {
		_, _ = fmt.Fprintln(stderr, "-out is required")
		return 2
	}

	s, code := openStore(*datadir, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = s.Close() }()

	c, proof, anchor, err := s.Prove(*id)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "prove failed: %v\n", err)
		return 2
	}
	bundle := proofBundle{Commitment: c, Proof: proof, Anchor: anchor, PublicKey: s.PublicKey()}

	b, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 2
	}
	b = append(b, '\n')
	if err := os.WriteFile(*out, b, 0o600); err != nil {
		_, _ = fmt.Fprintf(stderr, "write failed: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "wrote proof bundle to %s\n", *out)
	return 0
}

// runVerify checks a proof bundle with no data directory at all, calling
// node.Verify directly (spec.md §6's offline-verifiable surface).
func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "path to a proof bundle written by export-proof")
	publicKey := fs.String("public-key", "", "verify the signature too, under this hex public key")
	requireConfirmations := fs.Int("require-confirmations", 0, "when > 0, fail unless the bundle's anchor records a confirmation block height (the confirmation count itself is not compared)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" {
		_, _ = fmt.Fprintln(stderr, "-in is required")
		return 2
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read failed: %v\n", err)
		return 2
	}
	var bundle proofBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		_, _ = fmt.Fprintf(stderr, "parse failed: %v\n", err)
		return 2
	}

	pk := *publicKey
	if pk == "" {
		pk = bundle.PublicKey
	}
	ok, err := node.Verify(bundle.Commitment, bundle.Proof, pk)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify failed: %v\n", err)
		return 2
	}
	if ok && *requireConfirmations > 0 && bundle.Anchor.BlockHeight == nil {
		ok = false
	}

	_, _ = fmt.Fprintf(stdout, "verified=%s\n", strconv.FormatBool(ok))
	if !ok {
		return 1
	}
	return 0
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 2
	}
	return 0
}
