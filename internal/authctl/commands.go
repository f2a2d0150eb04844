// Package authctl implements the operator command line: generating signing
// keys and issuing or checking access tokens offline.
package authctl

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

const usage = `usage:
  authctl keygen [-size N]       print a new random signing key
  authctl issue [-ttl D] ACCOUNT issue an access token, key read from stdin
  authctl verify TOKEN           verify an access token, key read from stdin
`

// Run executes the command in args (without the binary name) and returns
// the process exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "keygen":
		err = keygen(args[1:], stdout)
	case "issue":
		err = issue(args[1:], stdin, stdout, stderr)
	case "verify":
		err = verify(args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func keygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	size := fs.Int("size", auth.MinKeyLength, "key size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < auth.MinKeyLength {
		return fmt.Errorf("%w: size must be at least %d", common.ErrWeakKey, auth.MinKeyLength)
	}

	key := common.GenerateRandByteArray(*size)
	if key == nil {
		return errors.New("random source failed")
	}
	defer common.WipeByteArray(key)

	_, err := fmt.Fprintln(stdout, base64.StdEncoding.EncodeToString(key))
	return err
}

func issue(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ttl := fs.Duration("ttl", auth.DefaultAccessTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("issue takes exactly one ACCOUNT")
	}

	key, err := readKey(stdin, stderr)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	token, expiry, err := auth.NewSigner(*ttl).Issue(&models.User{Account: fs.Arg(0)}, key)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", expiry.UTC().Format(time.RFC3339))
	return nil
}

func verify(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		return errors.New("verify takes exactly one TOKEN")
	}

	key, err := readKey(stdin, stderr)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	v := auth.NewSigner(0).Verify(args[0], key)
	if !v.Valid() {
		return fmt.Errorf("token rejected: %w", v.Err)
	}

	_, err = fmt.Fprintf(stdout, "account: %s\nexpires: %s\n",
		v.Claims.Account, v.Claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	return err
}
