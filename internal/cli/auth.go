package cli

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lattiq/mailmerge/internal/auth"
)

var errStateMismatch = errors.New("oauth state mismatch")

// NewAuthCommand returns the command that authorizes the Gmail transport.
func NewAuthCommand(rt *runtimeState) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail sending and store the OAuth token",
		Long: `Auth prints the Google consent URL for the OAuth client in the credentials
file. Open it, approve access, then paste the authorization code or the full
redirect URL. The resulting token is written to the token file.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			rt.bind(cmd.Flags(), map[string]string{
				keySettings + ".credentials_file": "credentials",
				keySettings + ".token_file":       "token",
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			credentials := rt.v.GetString(keySettings + ".credentials_file")
			if credentials == "" {
				credentials = "credentials.json"
			}
			tokenFile := rt.v.GetString(keySettings + ".token_file")
			if tokenFile == "" {
				tokenFile = "token.json"
			}

			cfg, err := auth.ConfigFromFile(credentials)
			if err != nil {
				return err
			}

			state := uuid.NewString()
			if code == "" {
				fmt.Fprintf(rt.stdout, "Open this URL in a browser and approve access:\n\n%s\n\nPaste the code or redirect URL: ", auth.AuthCodeURL(cfg, state))

				line, err := bufio.NewReader(rt.stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read authorization code: %w", err)
				}
				code, err = parseCode(line, state)
				if err != nil {
					return err
				}
			}

			store := auth.NewTokenStore(tokenFile)
			if _, err := auth.Exchange(cmd.Context(), cfg, store, code); err != nil {
				return err
			}

			fmt.Fprintf(rt.stdout, "Token stored in %s\n", store.Path())
			return nil
		},
	}

	cmd.Flags().String("credentials", "", "OAuth client file (default credentials.json)")
	cmd.Flags().String("token", "", "Token file to write (default token.json)")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code, skips the prompt")

	return cmd
}

// parseCode accepts either a bare authorization code or the redirect URL that
// carries it. A redirect URL must echo state.
func parseCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("authorization code is required")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if got := q.Get("state"); got != "" && got != state {
		return "", errStateMismatch
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code parameter")
	}
	return code, nil
}
