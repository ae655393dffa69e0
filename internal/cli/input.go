package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/invoicekeeper/internal/config"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads one trimmed line from reader.
// A partial line before EOF is returned as is.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword reads a password from the terminal without echo.
func GetPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// PromptCredentials asks for the account email and password when the
// configuration does not carry them.
func PromptCredentials(reader *bufio.Reader, w io.Writer, cfg *config.Config) error {
	if cfg.Email == "" {
		email, err := GetSimpleText(reader, "Hetzner account email", w)
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		cfg.Email = email
	}
	if cfg.Password == "" {
		pw, err := GetPassword(w)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Password = string(pw)
		clear(pw)
	}
	return nil
}
