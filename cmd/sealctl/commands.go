package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"contractseal/internal/infra/pdfseal"
	"contractseal/internal/infra/policyopa"
	"contractseal/internal/usecase"
	"contractseal/pkg/qrpayload"

	qrcode "github.com/skip2/go-qrcode"
)

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// engine builds a HashingEngine from HASHING_SECRET. Commands that only hash
// use a placeholder secret since Hash does not depend on it.
func (c *cli) engine(requireSecret bool) (*usecase.HashingEngine, error) {
	secret := strings.TrimSpace(c.getenv("HASHING_SECRET"))
	if secret == "" {
		if requireSecret {
			return nil, fmt.Errorf("HASHING_SECRET is not set")
		}
		secret = "unused"
	}
	return usecase.NewHashingEngine(secret, time.Now, nil)
}

func (c *cli) runHash(args []string) int {
	fs := c.flagSet("hash")
	var inPath string
	fs.StringVar(&inPath, "in", "", "file to hash")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if inPath == "" {
		fmt.Fprintln(c.stderr, "hash requires --in")
		return exitUsage
	}
	content, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "read input: %v\n", err)
		return exitUsage
	}
	engine, _ := c.engine(false)
	fmt.Fprintln(c.stdout, engine.Hash(content))
	return exitOK
}

func (c *cli) runHMAC(args []string) int {
	fs := c.flagSet("hmac")
	var contractID, hash string
	var signedAtMs int64
	fs.StringVar(&contractID, "contract-id", "", "contract id")
	fs.StringVar(&hash, "hash", "", "content hash hex")
	fs.Int64Var(&signedAtMs, "signed-at-ms", 0, "signing time, epoch milliseconds")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if contractID == "" || hash == "" || signedAtMs <= 0 {
		fmt.Fprintln(c.stderr, "hmac requires --contract-id, --hash and --signed-at-ms")
		return exitUsage
	}
	engine, err := c.engine(true)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitUsage
	}
	fmt.Fprintln(c.stdout, engine.ComputeHMAC(contractID, hash, time.UnixMilli(signedAtMs)))
	return exitOK
}

func (c *cli) runQREncode(args []string) int {
	fs := c.flagSet("qr encode")
	var contractID, hash, mac, pngPath string
	var atMs int64
	fs.StringVar(&contractID, "contract-id", "", "contract id")
	fs.StringVar(&hash, "hash", "", "content hash hex")
	fs.StringVar(&mac, "hmac", "", "signature hmac hex")
	fs.Int64Var(&atMs, "at-ms", 0, "timestamp, epoch milliseconds (default now)")
	fs.StringVar(&pngPath, "png", "", "also write a QR code image to this file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if contractID == "" || hash == "" || mac == "" {
		fmt.Fprintln(c.stderr, "qr encode requires --contract-id, --hash and --hmac")
		return exitUsage
	}
	at := time.Now()
	if atMs > 0 {
		at = time.UnixMilli(atMs)
	}
	payload := qrpayload.Encode(contractID, hash, mac, at)
	if pngPath != "" {
		if err := qrcode.WriteFile(payload, qrcode.Medium, 256, pngPath); err != nil {
			fmt.Fprintf(c.stderr, "write qr image: %v\n", err)
			return exitUsage
		}
	}
	fmt.Fprintln(c.stdout, payload)
	return exitOK
}

func (c *cli) runQRVerify(args []string) int {
	fs := c.flagSet("qr verify")
	var payload, contractID, hash string
	fs.StringVar(&payload, "payload", "", "scanned payload")
	fs.StringVar(&contractID, "contract-id", "", "expected contract id")
	fs.StringVar(&hash, "hash", "", "expected content hash hex")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if payload == "" || contractID == "" || hash == "" {
		fmt.Fprintln(c.stderr, "qr verify requires --payload, --contract-id and --hash")
		return exitUsage
	}
	if !qrpayload.Verify(payload, contractID, hash) {
		fmt.Fprintln(c.stdout, "invalid")
		return exitInvalid
	}
	fmt.Fprintln(c.stdout, "valid")
	return exitOK
}

func (c *cli) runTokenNew(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(c.stderr, "token new takes no arguments")
		return exitUsage
	}
	token, err := usecase.GenerateAccessToken()
	if err != nil {
		fmt.Fprintf(c.stderr, "generate token: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(c.stdout, "token=%s\nhash=%s\n", token, usecase.HashAccessToken(token))
	return exitOK
}

func (c *cli) runTokenHash(args []string) int {
	fs := c.flagSet("token hash")
	var token string
	fs.StringVar(&token, "token", "", "plaintext token")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if token == "" {
		fmt.Fprintln(c.stderr, "token hash requires --token")
		return exitUsage
	}
	fmt.Fprintln(c.stdout, usecase.HashAccessToken(token))
	return exitOK
}

type sealReport struct {
	SignerName   string `json:"signer_name,omitempty"`
	SignerEmail  string `json:"signer_email,omitempty"`
	SignerID     string `json:"signer_id"`
	Reason       string `json:"reason,omitempty"`
	Location     string `json:"location,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	SignedAt     string `json:"signed_at"`
	ReferenceID  string `json:"reference_id"`
	OriginalHash string `json:"original_hash"`
	ContentHash  string `json:"content_hash"`
	SealValid    *bool  `json:"seal_valid,omitempty"`
}

func (c *cli) runSealInspect(args []string) int {
	fs := c.flagSet("seal inspect")
	var inPath, contractID, outPath string
	fs.StringVar(&inPath, "in", "", "signed pdf")
	fs.StringVar(&outPath, "out", "", "report path (default stdout)")
	fs.StringVar(&contractID, "contract-id", "", "contract id; enables the seal check")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if inPath == "" {
		fmt.Fprintln(c.stderr, "seal inspect requires --in")
		return exitUsage
	}
	signed, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "read input: %v\n", err)
		return exitUsage
	}
	sig, err := pdfseal.New().Extract(context.Background(), signed)
	if err != nil {
		fmt.Fprintf(c.stderr, "extract signature: %v\n", err)
		return exitInvalid
	}
	engine, _ := c.engine(false)
	report := sealReport{
		SignerName:   sig.SignerName,
		SignerEmail:  sig.SignerEmail,
		SignerID:     sig.SignerID,
		Reason:       sig.Reason,
		Location:     sig.Location,
		IPAddress:    sig.IPAddress,
		SignedAt:     sig.SignedAt.UTC().Format(time.RFC3339Nano),
		ReferenceID:  sig.ReferenceID,
		OriginalHash: sig.OriginalHash,
		ContentHash:  engine.Hash(signed),
	}
	code := exitOK
	if contractID != "" {
		keyed, err := c.engine(true)
		if err != nil {
			fmt.Fprintln(c.stderr, err)
			return exitUsage
		}
		ok := usecase.VerifySeal(keyed, contractID, *sig)
		report.SealValid = &ok
		if !ok {
			code = exitInvalid
		}
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(c.stderr, "encode report: %v\n", err)
		return exitUsage
	}
	if err := writeOutput(c.stdout, outPath, append(out, '\n')); err != nil {
		fmt.Fprintf(c.stderr, "write output: %v\n", err)
		return exitUsage
	}
	return code
}

func (c *cli) runPolicyHash(args []string) int {
	fs := c.flagSet("policy hash")
	var path string
	fs.StringVar(&path, "path", "", "policy file or directory")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if path == "" {
		fmt.Fprintln(c.stderr, "policy hash requires --path")
		return exitUsage
	}
	hash, err := policyopa.ComputePolicyHashFromPath(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "hash policy: %v\n", err)
		return exitUsage
	}
	fmt.Fprintln(c.stdout, hash)
	return exitOK
}
