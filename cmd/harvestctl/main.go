// Command harvestctl signs in to a harvestly API from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harvestly/harvestly/pkg/client"
)

const usage = `usage: harvestctl [-api URL] [-token-file PATH] <command> [flags]

commands:
  login     [-email E] [-remember]   sign in
  register                          create an account
  forgot    [-email E]              request a password reset email
  reset     [-token T]              set a new password with a reset token
  verify    -token T                confirm an email address
  me                                show the signed-in user
  logout    [-all]                  forget the local token (-all revokes every session)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	session *client.Session
	in      *bufio.Reader
	out     io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("harvestctl", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() { fmt.Fprint(stdout, usage) }

	apiURL := fs.String("api", envOr("HARVESTLY_API", "http://localhost:5000"), "API base URL")
	tokenFile := fs.String("token-file", "", "where remembered tokens are kept")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	path := *tokenFile
	if path == "" {
		var err error
		if path, err = client.DefaultTokenPath(); err != nil {
			return err
		}
	}

	a := &app{
		// Tokens from unremembered logins die with the process, as a browser session would
		session: client.NewSession(*apiURL, client.NewFileTokenStore(path), client.NewMemoryTokenStore()),
		in:      bufio.NewReader(stdin),
		out:     stdout,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx)
	case "forgot":
		return a.forgot(ctx, rest)
	case "reset":
		return a.reset(ctx, rest)
	case "verify":
		return a.verify(ctx, rest)
	case "me":
		return a.me(ctx)
	case "logout":
		return a.logout(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	remember := fs.Bool("remember", false, "keep the token on disk")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = promptLine(a.in, a.out, "Email"); err != nil {
			return err
		}
	}
	password, err := promptPassword(a.out, "Password")
	if err != nil {
		return err
	}

	user, err := a.session.Login(ctx, *email, password, *remember)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s %s (%s)\n", user.FirstName, user.LastName, user.Role)
	if !*remember {
		fmt.Fprintln(a.out, "Token not saved; pass -remember to stay signed in")
	}
	return nil
}

func (a *app) register(ctx context.Context) error {
	var data client.RegisterData
	fields := []struct {
		prompt string
		dst    *string
	}{
		{"First name", &data.FirstName},
		{"Last name", &data.LastName},
		{"Email", &data.Email},
		{"Phone (10 digits)", &data.Phone},
		{"State", &data.State},
	}
	for _, f := range fields {
		v, err := promptLine(a.in, a.out, f.prompt)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	password, err := promptPassword(a.out, "Password")
	if err != nil {
		return err
	}
	confirm, err := promptPassword(a.out, "Confirm password")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}
	data.Password = password

	if _, err := a.session.Register(ctx, data); err != nil {
		return err
	}
	if a.session.User() != nil {
		fmt.Fprintln(a.out, "Account created and signed in")
	} else {
		fmt.Fprintln(a.out, "Account created; check your email to verify it before signing in")
	}
	return nil
}

func (a *app) forgot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("forgot", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = promptLine(a.in, a.out, "Email"); err != nil {
			return err
		}
	}

	token, err := a.session.ForgotPassword(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "If that email is registered, a reset link is on its way")
	if token != "" {
		fmt.Fprintf(a.out, "Reset token: %s\n", token)
	}
	return nil
}

func (a *app) reset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	token := fs.String("token", "", "reset token from the email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *token == "" {
		if *token, err = promptLine(a.in, a.out, "Reset token"); err != nil {
			return err
		}
	}
	password, err := promptPassword(a.out, "New password")
	if err != nil {
		return err
	}

	if _, err := a.session.ResetPassword(ctx, *token, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password updated")
	return nil
}

func (a *app) verify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	token := fs.String("token", "", "verification token from the email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("-token is required")
	}

	if err := a.session.VerifyEmail(ctx, *token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Email verified; you can sign in now")
	return nil
}

func (a *app) me(ctx context.Context) error {
	ok, err := a.session.CheckAuth(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("not signed in")
	}

	u := a.session.User()
	fmt.Fprintf(a.out, "%s %s <%s>\nrole: %s\nstate: %s\nverified: %t\n",
		u.FirstName, u.LastName, u.Email, u.Role, u.State, u.IsVerified)
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	all := fs.Bool("all", false, "revoke every session of this account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *all {
		if err := a.session.LogoutAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out everywhere")
		return nil
	}

	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
