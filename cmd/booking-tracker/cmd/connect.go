package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"booking-tracker/internal/database"
)

var (
	connectUser  string
	connectEmail string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authorize read access to a user's Gmail account",
	Long: `Print the Google consent URL, then read the authorization code from stdin
and store the resulting tokens for the user. The code is the "code" query
parameter of the page Google redirects to after consent.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "external ID of the account")
	connectCmd.Flags().StringVar(&connectEmail, "email", "", "account email used for watcher registration")
	connectCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := initializeApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.Config.GmailConfigured() {
		return errors.New("gmail OAuth client is not configured")
	}

	userID, err := a.DB.Users.EnsureUser(ctx, database.Identity{ExternalID: connectUser, Email: connectEmail})
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Visit this URL in your browser and grant access:")
	fmt.Fprintf(out, "\n%s\n\n", a.Tokens.AuthCodeURL("cli"))
	fmt.Fprint(out, "Authorization code: ")

	code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	code = strings.TrimSpace(code)
	if code == "" {
		if err != nil {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		return errors.New("no authorization code entered")
	}

	if _, err := a.Tokens.Connect(ctx, userID, code); err != nil {
		return err
	}
	newFormatter(cmd).PrintSuccess("Gmail connected for " + connectUser)
	return nil
}
