package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	app "memcap/src/app"
)

// how long an upload waits for its last progress events after the response
const progressDrain = 500 * time.Millisecond

func (c *capsule) uploadCmd() *cobra.Command {
	var animate bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a photo",
		Long: `Upload a photo to your capsule.

With --animate the server also asks the animate function to bring the
photo to life once it is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			out := cmd.OutOrStdout()
			requestID := ulid.Make().String()

			stop := c.followProgress(cmd.Context(), requestID, out)
			res, err := c.client.Upload(cmd.Context(), UploadRequest{
				Filename: filepath.Base(file),
				MimeType: app.ContentType("", app.Extension(file)),
				Data:     base64.StdEncoding.EncodeToString(data),
				Animate:  animate,
			}, requestID)
			stop()
			if err != nil {
				return err
			}
			return c.print(out, res, func() {
				fmt.Fprintf(out, "Uploaded %s as %s\n", file, res.PhotoID)
				if animate {
					fmt.Fprintln(out, "Animation requested, check `capsule show` later")
				}
			})
		},
	}
	cmd.Flags().BoolVar(&animate, "animate", false, "animate the photo after upload")
	return cmd
}

// followProgress prints the progress events of requestID until the returned
// stop function is called.
func (c *capsule) followProgress(ctx context.Context, requestID string, out io.Writer) func() {
	conn, err := c.client.Events(ctx)
	if err != nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var event app.Event
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			percent, ok := progressOf(event, requestID)
			if !ok || c.jsonOut {
				continue
			}
			fmt.Fprintf(out, "uploading... %d%%\n", percent)
			if percent >= app.ProgressRecorded {
				return
			}
		}
	}()
	return func() {
		select {
		case <-done:
		case <-time.After(progressDrain):
		}
		conn.Close()
		<-done
	}
}

func progressOf(event app.Event, requestID string) (int, bool) {
	if event.Type != app.EventUploadProgress {
		return 0, false
	}
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, false
	}
	var p struct {
		Percent   int    `json:"percent"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.RequestID != requestID {
		return 0, false
	}
	return p.Percent, true
}

func (c *capsule) galleryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gallery",
		Short: "List your photos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := c.client.Photos(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, items, func() {
				if len(items) == 0 {
					fmt.Fprintln(out, "No photos yet. Upload one with `capsule upload <file>`.")
					return
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tSTATUS")
				for _, item := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.CreatedAt.Local().Format(time.DateTime), item.Status)
				}
				_ = w.Flush()
			})
		},
	}
}

func (c *capsule) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one photo and a link to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := c.client.Photo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.print(out, detail, func() {
				fmt.Fprintf(out, "id:       %s\n", detail.Photo.ID)
				fmt.Fprintf(out, "created:  %s\n", detail.Photo.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "status:   %s\n", detail.Photo.StatusOrEmpty())
				fmt.Fprintf(out, "path:     %s\n", detail.Photo.StoragePath)
				fmt.Fprintf(out, "url:      %s\n", detail.URL)
				if !detail.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "expires:  %s\n", detail.ExpiresAt.Local().Format(time.DateTime))
				}
			})
		},
	}
}

func (c *capsule) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.DeletePhoto(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *capsule) animateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "animate <id>",
		Short: "Animate a stored photo and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.client.Animate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), env, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Animated %s\n", args[0])
			})
		},
	}
}
