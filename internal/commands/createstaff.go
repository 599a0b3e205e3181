package commands

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"carecal/internal/application/orchestrators"
	"carecal/internal/domain/account"
)

// ErrPasswordMismatch is returned when the confirmation does not match.
var ErrPasswordMismatch = errors.New("passwords do not match")

// Prompter reads answers from the operator. Secret input is not echoed on a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// NewPrompter wraps in and out. When in is a terminal, secrets are read with echo off.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// Line prints prompt and returns the trimmed answer.
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret prints prompt and reads one line without echoing it.
func (p *Prompter) Secret(prompt string) (string, error) {
	if !p.tty {
		return p.Line(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateStaff handles the create-staff subcommand.
// PRE: deps.AccountStore is open and migrated
// POST: returns the new staff account ID
func CreateStaff(ctx context.Context, args []string, p *Prompter, deps orchestrators.CreateAccountDeps) (string, error) {
	fs := flag.NewFlagSet("create-staff", flag.ContinueOnError)
	fs.SetOutput(p.out)
	email := fs.String("email", "", "Email address for the new staff account")
	name := fs.String("name", "", "Full name shown in the header")
	fs.Usage = func() {
		fmt.Fprintf(p.out, "Usage: carecal create-staff [OPTIONS]\n\n")
		fmt.Fprintf(p.out, "Creates a staff account with a password login.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	var err error
	if *email == "" {
		if *email, err = p.Line("Email: "); err != nil {
			return "", fmt.Errorf("read email: %w", err)
		}
	}
	if *name == "" {
		if *name, err = p.Line("Full name: "); err != nil {
			return "", fmt.Errorf("read name: %w", err)
		}
	}

	password, err := p.Secret("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	confirm, err := p.Secret("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}

	id, err := orchestrators.ExecuteCreateAccount(ctx, orchestrators.CreateAccountInput{
		Email:    *email,
		FullName: *name,
		Password: password,
		Role:     account.RoleStaff,
	}, deps)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "Created staff account %s (%s)\n", strings.ToLower(*email), id)
	return id, nil
}
