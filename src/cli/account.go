package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	auth "memcap/src/auth"
)

func public(cmd *cobra.Command) *cobra.Command {
	cmd.Annotations = map[string]string{annotationPublic: "true"}
	return cmd
}

func (c *capsule) signupCmd() *cobra.Command {
	var req auth.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.ValidateSignUp(req); err != nil {
				return err
			}
			res, err := c.client.SignUp(cmd.Context(), req)
			if err != nil {
				return err
			}
			if res.Session != nil {
				if err := c.saveSession(res.Session); err != nil {
					return err
				}
			}
			return c.print(cmd.OutOrStdout(), res, func() {
				if res.ConfirmationRequired {
					fmt.Fprintln(cmd.OutOrStdout(), "Account created. Check your email to confirm it, then run `capsule login`.")
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s!\n", res.User.Name)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "password, at least 6 characters")
	return public(cmd)
}

func (c *capsule) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.ValidateSignIn(email, password); err != nil {
				return err
			}
			session, err := c.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := c.saveSession(session); err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), session.User, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", session.User.Email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return public(cmd)
}

func (c *capsule) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := c.saveSession(nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// whoamiCmd is the home screen: who is signed in.
func (c *capsule) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(cmd.OutOrStdout(), c.user, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", c.user.Name, c.user.Email)
				fmt.Fprintf(cmd.OutOrStdout(), "server: %s\n", c.v.GetString(keyServer))
			})
		},
	}
}
