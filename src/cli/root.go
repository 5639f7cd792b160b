package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	app "memcap/src/app"
)

const (
	keyServer       = "server"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"

	defaultServer = "http://localhost:8088"

	// commands carrying this annotation run without a stored session
	annotationPublic = "public"
)

var errNotLoggedIn = errors.New("not logged in, run `capsule login` first")

// capsule holds the state shared by every command of one invocation.
type capsule struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool

	client *Client
	user   *app.User
}

// NewRootCmd builds the capsule command tree.
func NewRootCmd() *cobra.Command {
	c := &capsule{v: viper.New()}

	root := &cobra.Command{
		Use:   "capsule",
		Short: "Memory Capsule terminal client",
		Long: `Upload and browse your photos on a memcap server.

Examples:
  capsule signup --name "Ada Lovelace" --email ada@example.com --password secret1
  capsule login --email ada@example.com --password secret1
  capsule upload ./beach.jpg --animate
  capsule gallery
  capsule show 3f1c...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(); err != nil {
				return err
			}
			if cmd.Annotations[annotationPublic] == "true" {
				return nil
			}
			return c.requireSession(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default $HOME/.capsule.yaml)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print JSON instead of text")
	root.PersistentFlags().String(keyServer, "", "memcap server URL")
	_ = c.v.BindPFlag(keyServer, root.PersistentFlags().Lookup(keyServer))

	root.AddCommand(
		c.signupCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.uploadCmd(),
		c.galleryCmd(),
		c.showCmd(),
		c.deleteCmd(),
		c.animateCmd(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (c *capsule) loadConfig() error {
	path := c.cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".capsule.yaml")
	}
	c.cfgFile = path
	c.v.SetConfigFile(path)
	c.v.SetConfigType("yaml")
	c.v.SetEnvPrefix("CAPSULE")
	c.v.AutomaticEnv()
	c.v.SetDefault(keyServer, defaultServer)

	if err := c.v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	c.client = NewClient(c.v.GetString(keyServer), c.v.GetString(keyAccessToken))
	return nil
}

// requireSession resolves the stored session, refreshing it once when the
// server reports it expired.
func (c *capsule) requireSession(ctx context.Context) error {
	if c.v.GetString(keyAccessToken) == "" {
		return errNotLoggedIn
	}
	user, err := c.client.Account(ctx)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Unauthenticated() {
		refreshToken := c.v.GetString(keyRefreshToken)
		if refreshToken == "" {
			return errNotLoggedIn
		}
		session, rerr := c.client.Refresh(ctx, refreshToken)
		if rerr != nil {
			_ = c.saveSession(nil)
			return errNotLoggedIn
		}
		if err := c.saveSession(session); err != nil {
			return err
		}
		user, err = c.client.Account(ctx)
	}
	if err != nil {
		return err
	}
	c.user = user
	return nil
}

// saveSession stores s in the config file; nil forgets the tokens.
func (c *capsule) saveSession(s *app.Session) error {
	access, refresh := "", ""
	if s != nil {
		access, refresh = s.AccessToken, s.RefreshToken
	}
	c.v.Set(keyAccessToken, access)
	c.v.Set(keyRefreshToken, refresh)
	c.client = c.client.WithToken(access)
	if err := c.v.WriteConfigAs(c.cfgFile); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return os.Chmod(c.cfgFile, 0o600)
}

func (c *capsule) print(w io.Writer, v any, text func()) error {
	if !c.jsonOut {
		text()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
