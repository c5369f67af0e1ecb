package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbops/toolkit/pkg/mail"
)

func newSendTestCommand() *cobra.Command {
	var (
		to      []string
		message string
	)

	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Send a test notification synchronously through SMTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if rt.cfg.Mail.Host == "" {
				return fmt.Errorf("no smtp host configured")
			}

			transport, err := mail.NewSMTPTransport(rt.cfg.Mail, rt.logger)
			if err != nil {
				return err
			}

			task := mail.NewTask(mail.CustomPayload{
				To:               resolveTestRecipients(to, rt.cfg.Mail.DefaultRecipients),
				NotificationType: "test",
				Title:            "Test notification",
				Message:          message,
				Priority:         "low",
			})
			res := transport.Send(task)
			if !res.OK {
				return fmt.Errorf("test mail failed: %s", res.Message)
			}
			_, err = fmt.Fprintln(rt.Writer(), "test mail delivered")
			return err
		},
	}

	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipients, defaults to the configured default recipients")
	cmd.Flags().StringVar(&message, "message", "This is a test notification from dbopsctl.", "Message body")

	return cmd
}

func resolveTestRecipients(to, defaults []string) []string {
	if len(to) > 0 {
		return to
	}
	return defaults
}
