package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"agent-orchestrator/internal/infra/config"
)

// configKeyEnv holds the passphrase config.Load uses to decrypt enc: values.
const configKeyEnv = "AGENTORCH_CONFIG_KEY"

// runEncrypt prints an enc: value for config.yaml. The secret is read from
// the first line of in when no argument is given, keeping it out of shell
// history.
func runEncrypt(args []string, in io.Reader, out io.Writer) error {
	passphrase := os.Getenv(configKeyEnv)
	if passphrase == "" {
		return fmt.Errorf("%s must be set to the passphrase used at load time", configKeyEnv)
	}

	secret := strings.Join(args, " ")
	if secret == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return errors.New("usage: agent-orchestrator encrypt [VALUE] (or pipe the value on stdin)")
	}

	encrypted, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enc:%s\n", encrypted)
	return nil
}
