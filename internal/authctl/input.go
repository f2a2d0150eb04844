package authctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"golang.org/x/term"
)

// test seams for the terminal
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// readKey reads a signing key. On a terminal the key is read without echo
// after a prompt on w; otherwise the first line of in is used. Surrounding
// whitespace is trimmed and the remaining text is the key itself, exactly as
// the server takes it from its secret key setting.
func readKey(in io.Reader, w io.Writer) ([]byte, error) {
	var raw []byte
	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		if _, err := fmt.Fprint(w, "Signing key: "); err != nil {
			return nil, err
		}
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return nil, err
		}
		raw = pw
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		raw = []byte(line)
	}
	defer common.WipeByteArray(raw)

	key := []byte(strings.TrimSpace(string(raw)))
	if len(key) == 0 {
		return nil, errors.New("empty key")
	}
	return key, nil
}
