package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keyforge/accessreview/internal/review"
)

var (
	signOffReviewer      string
	signOffCertification string
	signOffUser          string
	signOffComments      string
	signOffPasswordStdin bool
)

var signOffCmd = &cobra.Command{
	Use:   "signoff",
	Short: "Sign off a certification after confirming the reviewer's password.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(signOffReviewer) == "" || strings.TrimSpace(signOffCertification) == "" {
			return errors.New("--reviewer and --cert are required")
		}
		password, err := resolveSignOffPassword(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		_, _, svc, err := loadClientService(ctx)
		if err != nil {
			return err
		}
		err = svc.SignOff(ctx, review.SignOffInput{
			ReviewerID:      signOffReviewer,
			CertificationID: signOffCertification,
			SessionUserID:   signOffUser,
			Password:        password,
			Comments:        signOffComments,
		})
		if err != nil {
			return err
		}
		cmd.Printf("signed off certification %s\n", signOffCertification)
		return nil
	},
}

func init() {
	signOffCmd.Flags().StringVar(&signOffReviewer, "reviewer", "", "reviewer id")
	signOffCmd.Flags().StringVar(&signOffCertification, "cert", "", "certification id")
	signOffCmd.Flags().StringVar(&signOffUser, "user", "", "user name the password is checked against (default: the reviewer id)")
	signOffCmd.Flags().StringVar(&signOffComments, "comments", "", "sign-off comments")
	signOffCmd.Flags().BoolVar(&signOffPasswordStdin, "password-stdin", false, "read the password from stdin")
}

func resolveSignOffPassword(cmd *cobra.Command) (string, error) {
	if signOffPasswordStdin {
		raw, err := readStdinLine()
		if err != nil {
			return "", err
		}
		password := strings.TrimRight(raw, "\r\n")
		if password == "" {
			return "", errors.New("password is empty")
		}
		return password, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no password provided (use --password-stdin or run in a terminal)")
	}

	cmd.Print("Password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return "", err
	}
	if len(pass) == 0 {
		return "", errors.New("password is empty")
	}
	return string(pass), nil
}

func readStdinLine() (string, error) {
	in, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if in.Mode()&os.ModeCharDevice != 0 {
		return "", errors.New("stdin is a terminal; omit --password-stdin to prompt")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return scanner.Text(), nil
}
