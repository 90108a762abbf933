// auth.go implements login, register, logout, whoami and profile commands.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/code-and-cash/cashctl/internal/market"
	"github.com/code-and-cash/cashctl/internal/session"
	"github.com/code-and-cash/cashctl/internal/tui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Sign in with email and password. Missing values are prompted for;
the password is read without echo when stdin is a terminal.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Long: `Tell the server the session is over and remove the local session.
The local session is removed even when the server cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change your name or email",
	Args:  cobra.NoArgs,
	RunE:  runProfileUpdate,
}

var (
	emailFlag    string
	passwordFlag string
	nameFlag     string
	refreshFlag  bool

	profileNameFlag  string
	profileEmailFlag string
)

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&emailFlag, "email", "", "Account email")
		c.Flags().StringVar(&passwordFlag, "password", "", "Account password (prompted when omitted)")
	}
	registerCmd.Flags().StringVar(&nameFlag, "name", "", "Display name")
	whoamiCmd.Flags().BoolVar(&refreshFlag, "refresh", false, "Fetch the profile from the server and update the cache")

	profileUpdateCmd.Flags().StringVar(&profileNameFlag, "name", "", "New display name")
	profileUpdateCmd.Flags().StringVar(&profileEmailFlag, "email", "", "New email")
	profileCmd.AddCommand(profileUpdateCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	p := newPrompter(cmd)
	email, err := p.value("Email", emailFlag)
	if err != nil {
		return err
	}
	password, err := p.secret("Password", passwordFlag)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		sess, err := a.auth.Login(cmd.Context(), market.LoginInput{Email: email, Password: password})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", displayUser(sess.User), sess.Role())
		return nil
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	p := newPrompter(cmd)
	name, err := p.value("Name", nameFlag)
	if err != nil {
		return err
	}
	email, err := p.value("Email", emailFlag)
	if err != nil {
		return err
	}
	password, err := p.secret("Password", passwordFlag)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		sess, err := a.auth.Register(cmd.Context(), market.RegisterInput{Name: name, Email: email, Password: password})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s. You are signed in.\n", displayUser(sess.User))
		return nil
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		if !a.store.IsAuthenticated() {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}
		if err := a.auth.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	})
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		out := cmd.OutOrStdout()
		sess := a.store.Read()
		if sess.IsZero() {
			fmt.Fprintln(out, "Not logged in.")
			return nil
		}

		user := *sess.User
		source := "cached " + sess.UpdatedAt.Local().Format("2006-01-02 15:04")
		if refreshFlag {
			u, err := a.auth.Me(cmd.Context())
			if err != nil {
				return err
			}
			user = u.SessionUser()
			if err := a.store.UpdateUser(user); err != nil {
				return fmt.Errorf("updating cached profile: %w", err)
			}
			source = "server"
		}

		printFields(out,
			"Name", displayUser(&user),
			"Email", user.Email,
			"Role", string(user.Role),
			"ID", user.ID,
			"Source", source,
		)
		return nil
	})
}

func runProfileUpdate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		u, err := a.auth.UpdateProfile(cmd.Context(), market.ProfileInput{Name: profileNameFlag, Email: profileEmailFlag})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile updated: %s <%s>\n", u.DisplayName(), u.Email)
		return nil
	})
}

func displayUser(u *session.User) string {
	if u == nil {
		return market.UnknownUser
	}
	mu := market.User{Name: u.Name, Email: u.Email}
	return mu.DisplayName()
}

// prompter reads missing credentials from stdin.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	tty bool
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{
		in:  bufio.NewReader(in),
		out: cmd.ErrOrStderr(),
		tty: in == os.Stdin && tui.IsInputTTY(),
	}
}

func (p *prompter) value(label, given string) (string, error) {
	if given != "" {
		return given, nil
	}
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) secret(label, given string) (string, error) {
	if given != "" || !p.tty {
		return p.value(label, given)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}
