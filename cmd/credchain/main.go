package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/credchain/credchain/cidutil"
	"github.com/credchain/credchain/credential"
	"github.com/credchain/credchain/keys"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "doc":
		return cmdDoc(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "credchain: offline key custody and credential document tooling")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  credchain key init --name <name> [--alg rsa2048|ed25519|dilithium3] [--dir <path>] [--force]")
	fmt.Fprintln(w, "  credchain key list [--dir <path>]")
	fmt.Fprintln(w, "  credchain key export --name <name> [--dir <path>] [--private]")
	fmt.Fprintln(w, "  credchain doc cid <file>")
	fmt.Fprintln(w, "  credchain doc verify --issuer-pub <pem-file> <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys are stored under ~/.credchain/keys/<name> (0600 private key files)")
	fmt.Fprintln(w, "  - doc cid prints the content identifier of the exact file bytes")
	fmt.Fprintln(w, "  - doc verify checks a canonical credential document against an issuer public key")
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "credchain key: minimal local key custody")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  credchain key init --name <name> [--alg rsa2048|ed25519|dilithium3] [--dir <path>] [--force]")
	fmt.Fprintln(w, "  credchain key list [--dir <path>]")
	fmt.Fprintln(w, "  credchain key export --name <name> [--dir <path>] [--private]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var alg string
	var dir string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under the keystore)")
	fs.StringVar(&alg, "alg", string(keys.AlgRSA2048), "Key algorithm")
	fs.StringVar(&dir, "dir", "", "Keystore directory (default ~/.credchain/keys)")
	fs.BoolVar(&force, "force", false, "Overwrite an existing key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	store, err := keys.OpenStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	pair, did, err := store.Init(name, keys.Algorithm(alg), force)
	if err != nil {
		fmt.Fprintf(errOut, "init key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created key: %s\n", did)
	fmt.Fprintf(out, "Algorithm: %s\n", pair.Algorithm)
	fmt.Fprintf(out, "Stored at: %s\n", filepath.Join(store.Directory, name))
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var dir string
	fs.StringVar(&dir, "dir", "", "Keystore directory (default ~/.credchain/keys)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	store, err := keys.OpenStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	entries, err := store.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, entry := range entries {
		fmt.Fprintf(out, "%s\t%s\t%s\n", entry.Name, entry.Identifier, entry.Algorithm)
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var dir string
	var private bool

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&dir, "dir", "", "Keystore directory (default ~/.credchain/keys)")
	fs.BoolVar(&private, "private", false, "Export the private key instead of the public key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	store, err := keys.OpenStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	pair, err := store.Export(name)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	if private {
		_, _ = io.WriteString(out, pair.PrivatePEM)
		return 0
	}
	_, _ = io.WriteString(out, pair.PublicPEM)
	return 0
}

func cmdDoc(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: credchain doc <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: cid, verify")
		return 2
	}
	switch args[0] {
	case "cid":
		return cmdDocCID(args[1:], out, errOut)
	case "verify":
		return cmdDocVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown doc subcommand: %s\n", args[0])
		return 2
	}
}

func cmdDocCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("doc cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: credchain doc cid <file>")
		return 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	_, _ = fmt.Fprintln(out, cidutil.SumString(data))
	return 0
}

func cmdDocVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("doc verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var issuerPubPath string
	fs.StringVar(&issuerPubPath, "issuer-pub", "", "Issuer public key PEM file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if issuerPubPath == "" {
		fmt.Fprintln(errOut, "missing --issuer-pub")
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: credchain doc verify --issuer-pub <pem-file> <file>")
		return 2
	}

	docBytes, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read document: %v\n", err)
		return 1
	}
	pubBytes, err := os.ReadFile(issuerPubPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --issuer-pub: %v\n", err)
		return 1
	}

	checks, err := credential.VerifyDocument(docBytes, string(pubBytes))
	if err != nil {
		fmt.Fprintf(errOut, "invalid document: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Content-Hash: %s\n", boolWord(checks.HashMatches))
	fmt.Fprintf(out, "Signature: %s\n", boolWord(checks.SignatureValid))
	fmt.Fprintf(out, "CID: %s\n", checks.CID)
	if !checks.HashMatches || !checks.SignatureValid {
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func boolWord(ok bool) string {
	if ok {
		return "valid"
	}
	return "INVALID"
}
