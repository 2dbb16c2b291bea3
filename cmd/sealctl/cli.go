package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitInvalid = 3
)

type cli struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
	os.Exit(c.run(os.Args))
}

func (c *cli) run(args []string) int {
	if len(args) < 2 {
		c.usage(args)
		return exitUsage
	}

	switch args[1] {
	case "hash":
		return c.runHash(args[2:])
	case "hmac":
		return c.runHMAC(args[2:])
	case "qr":
		if len(args) >= 3 {
			switch args[2] {
			case "encode":
				return c.runQREncode(args[3:])
			case "verify":
				return c.runQRVerify(args[3:])
			}
		}
	case "token":
		if len(args) >= 3 {
			switch args[2] {
			case "new":
				return c.runTokenNew(args[3:])
			case "hash":
				return c.runTokenHash(args[3:])
			}
		}
	case "seal":
		if len(args) >= 3 && args[2] == "inspect" {
			return c.runSealInspect(args[3:])
		}
	case "policy":
		if len(args) >= 3 && args[2] == "hash" {
			return c.runPolicyHash(args[3:])
		}
	}

	c.usage(args)
	return exitUsage
}

func (c *cli) usage(args []string) {
	name := "sealctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(c.stderr, "usage:\n")
	fmt.Fprintf(c.stderr, "  %s hash --in <file>\n", name)
	fmt.Fprintf(c.stderr, "  %s hmac --contract-id <id> --hash <hex> --signed-at-ms <epoch-ms>   (secret from HASHING_SECRET)\n", name)
	fmt.Fprintf(c.stderr, "  %s qr encode --contract-id <id> --hash <hex> --hmac <hex> [--at-ms <epoch-ms>] [--png <file>]\n", name)
	fmt.Fprintf(c.stderr, "  %s qr verify --payload <payload> --contract-id <id> --hash <hex>\n", name)
	fmt.Fprintf(c.stderr, "  %s token new\n", name)
	fmt.Fprintf(c.stderr, "  %s token hash --token <token>\n", name)
	fmt.Fprintf(c.stderr, "  %s seal inspect --in <signed.pdf> [--contract-id <id>] [--out <file>]   (seal check needs HASHING_SECRET)\n", name)
	fmt.Fprintf(c.stderr, "  %s policy hash --path <file-or-dir>\n", name)
}

func writeOutput(w io.Writer, path string, payload []byte) error {
	if path == "" {
		_, err := w.Write(payload)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
