package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and persist the session credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()

		email := loginEmail
		if email == "" {
			if email, err = prompt(cmd.OutOrStdout(), os.Stdin, "Operator email: "); err != nil {
				return err
			}
		}
		password, err := readSecret(cmd.OutOrStdout(), "Access code: ")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		token, id, err := rt.client.Login(ctx, email, password)
		if err != nil {
			return err
		}
		if _, err := rt.store.Login(ctx, token, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", id.Name, id.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the persisted session credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		if _, err := rt.store.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the operator of the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		id, err := rt.requireSession(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s <%s>\nrole:   %s\nsector: %s\n", id.Name, id.Email, id.Role, id.Sector())
		if exp, ok := rt.store.Snapshot().ExpiresAt(); ok {
			fmt.Fprintf(out, "expires: %s\n", exp.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func prompt(out io.Writer, in io.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads a line without echo when STDIN is a terminal.
func readSecret(out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(out, os.Stdin, label)
	}
	fmt.Fprint(out, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Operator email")
}
