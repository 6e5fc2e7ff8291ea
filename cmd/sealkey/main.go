// Command sealkey seals the downstream service key into an encrypted
// key file that the relay opens at startup with HOSTING_RELAY_PASSPHRASE.
//
// Usage:
//
//	sealkey -out service.key
//
// The key and passphrase are read from stdin rather than flags so they
// never land in shell history or process listings.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/MasterDev782/Hosting/internal/security"
)

func main() {
	out := flag.String("out", "service.key", "path to write the sealed key file")
	flag.Parse()

	reader := bufio.NewReader(os.Stdin)

	key, err := promptLine(reader, "Service key: ")
	if err != nil {
		fatal("failed to read service key: %v", err)
	}
	if key == "" {
		fatal("service key must not be empty")
	}

	passphrase, err := promptLine(reader, "Passphrase: ")
	if err != nil {
		fatal("failed to read passphrase: %v", err)
	}
	confirm, err := promptLine(reader, "Confirm passphrase: ")
	if err != nil {
		fatal("failed to read passphrase confirmation: %v", err)
	}
	if passphrase != confirm {
		fatal("passphrases do not match")
	}
	if len(passphrase) < 12 {
		fatal("passphrase must be at least 12 characters")
	}

	if err := security.SealKeyFile(*out, []byte(key), []byte(passphrase)); err != nil {
		fatal("failed to seal key file: %v", err)
	}

	fmt.Printf("sealed key written to %s\n", *out)
}

func promptLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sealkey: "+format+"\n", args...)
	os.Exit(1)
}
