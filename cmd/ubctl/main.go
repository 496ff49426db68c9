package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mdouchement/unionboard/internal/client"
	"github.com/mdouchement/unionboard/internal/logger"
	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const logfile = "ubctl.log"

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	debug       bool
	text        string
	category    string
	attachments []string
	from        string
	to          string
)

func main() {
	c := &cobra.Command{
		Use:           "ubctl",
		Short:         "Manage the content of the union website",
		Version:       fmt.Sprintf("%s - build %.7s @ %s", version, revision, date),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	c.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Dump the records and log debug messages")

	c.AddCommand(loginCmd)
	c.AddCommand(logoutCmd)
	c.AddCommand(collectionsCmd)

	listCmd.Flags().StringVarP(&text, "query", "q", "", "Text searched in the records")
	listCmd.Flags().StringVarP(&category, "category", "c", cms.All, "Category of the records")
	c.AddCommand(listCmd)

	c.AddCommand(showCmd)

	createCmd.Flags().StringArrayVarP(&attachments, "attach", "a", nil, "File to upload as field=path")
	c.AddCommand(createCmd)

	editCmd.Flags().StringArrayVarP(&attachments, "attach", "a", nil, "File to upload as field=path")
	c.AddCommand(editCmd)

	c.AddCommand(deleteCmd)

	calendarCmd.Flags().StringVar(&from, "from", "", "First day of the calendar (default today)")
	calendarCmd.Flags().StringVar(&to, "to", "", "Day after the end of the calendar (default 30 days after from)")
	c.AddCommand(calendarCmd)

	watchCmd.Flags().StringVarP(&text, "query", "q", "", "Text searched in the records")
	watchCmd.Flags().StringVarP(&category, "category", "c", cms.All, "Category of the records")
	c.AddCommand(watchCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := c.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Println(client.Message(err))
		os.Exit(1)
	}
}

var (
	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Login to the unionboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Login(cmd.Context(), client.CredentialsFile)
		},
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return client.Logout(client.CredentialsFile)
		},
	}

	collectionsCmd = &cobra.Command{
		Use:   "collections",
		Short: "List the managed collections",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(strings.Join(client.Collections(), "\n"))
		},
	}

	listCmd = &cobra.Command{
		Use:   "list COLLECTION",
		Short: "List the records of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connect(logger.New(""))
			if err != nil {
				return err
			}
			return app.List(cmd.Context(), args[0], cms.Query{Text: text, Category: category})
		},
	}

	showCmd = &cobra.Command{
		Use:   "show COLLECTION ID",
		Short: "Show a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connect(logger.New(""))
			if err != nil {
				return err
			}
			return app.Show(cmd.Context(), args[0], args[1])
		},
	}

	createCmd = &cobra.Command{
		Use:   "create COLLECTION DRAFT.yml",
		Short: "Create a record from a YAML draft",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := client.ReadDraft(args[1], attachments)
			if err != nil {
				return err
			}

			app, err := connect(logger.New(""))
			if err != nil {
				return err
			}
			return app.Create(cmd.Context(), args[0], draft)
		},
	}

	editCmd = &cobra.Command{
		Use:   "edit COLLECTION ID DRAFT.yml",
		Short: "Update a record, fields missing from the YAML draft are kept",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := client.ReadDraft(args[2], attachments)
			if err != nil {
				return err
			}

			app, err := connect(logger.New(""))
			if err != nil {
				return err
			}
			return app.Edit(cmd.Context(), args[0], args[1], draft)
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete COLLECTION ID",
		Short: "Delete a record and its attachments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connect(logger.New(""))
			if err != nil {
				return err
			}
			return app.Delete(cmd.Context(), args[0], args[1])
		},
	}

	calendarCmd = &cobra.Command{
		Use:   "calendar",
		Short: "Show the scheduled events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := day(from)
			if err != nil {
				return errors.Wrap(err, "invalid --from")
			}
			end, err := day(to)
			if err != nil {
				return errors.Wrap(err, "invalid --to")
			}

			app, err := connect(logger.New(""))
			if err != nil {
				return err
			}
			return app.Calendar(cmd.Context(), start, end)
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch COLLECTION",
		Short: "Live view of a collection, redrawn on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The screen is redrawn, logs go to a file.
			app, err := connect(logger.New(logfile))
			if err != nil {
				return err
			}

			return app.Watch(cmd.Context(), args[0], cms.Query{Text: text, Category: category})
		},
	}
)

func connect(l *logrus.Logger) (*client.App, error) {
	cfg, err := client.Load(client.CredentialsFile)
	if err != nil {
		return nil, err
	}

	l.SetLevel(logrus.WarnLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}

	return client.Connect(cfg, client.Options{
		Out:    os.Stdout,
		Debug:  debug,
		Logger: l,
	})
}

func day(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}

	t, err := dateparse.ParseIn(s, time.Local)
	if err != nil {
		return time.Time{}, err
	}

	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local), nil
}
