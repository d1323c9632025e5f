package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/socialsync/internal/common"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// PromptLine prints prompt to w and reads one trimmed line from reader. A
// partial line before EOF counts; an empty stream returns io.EOF.
//
//	Story text
//	> _
func PromptLine(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPIN prints prompt to w and reads a PIN from the terminal without echo.
func GetPIN(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}
	raw, err := readPassword(int(os.Stdin.Fd()))
	defer common.WipeByteArray(raw)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read pin: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// GetNewPIN asks for a PIN twice and fails with common.ErrValidation when
// the entries differ.
func GetNewPIN(w io.Writer) (string, error) {
	pin, err := GetPIN(w, "New PIN")
	if err != nil {
		return "", err
	}
	again, err := GetPIN(w, "Repeat new PIN")
	if err != nil {
		return "", err
	}
	if pin != again {
		return "", fmt.Errorf("pins do not match: %w", common.ErrValidation)
	}
	return pin, nil
}

// GetMultiline prints prompt to w and collects lines until an empty line or
// EOF, joined with '\n'.
func GetMultiline(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return "", err
	}

	var b strings.Builder
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if err != nil {
			break
		}
	}
	return strings.TrimSpace(b.String()), nil
}
