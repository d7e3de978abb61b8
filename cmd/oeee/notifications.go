package main

import (
	"github.com/spf13/cobra"

	"github.com/oeee-cafe/oeee-client/internal/models"
)

const defaultPageSize = 20

func (c *cli) notificationsCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Show the notification feed",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			page, err := a.api.Notifications(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if len(page.Notifications) == 0 {
				c.printf("No notifications\n")
			}
			for _, n := range page.Notifications {
				base := n.Base()
				marker := " "
				if base.ReadAt == nil {
					marker = "*"
				}
				c.printf("%s %s  %s\n", marker, base.CreatedAt.Format("2006-01-02 15:04"), describe(n))
			}
			if page.HasMore {
				c.printf("More with --offset %d\n", offset+len(page.Notifications))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultPageSize, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of notifications to skip")

	return cmd
}

// describe renders one line for every variant DecodeNotification returns.
func describe(n models.Notification) string {
	actor := "@" + n.Base().Actor.LoginName

	switch v := n.(type) {
	case models.CommentNotification:
		return actor + " commented on post " + v.PostID + ": " + v.Excerpt
	case models.CommentReplyNotification:
		return actor + " replied to your comment on post " + v.PostID + ": " + v.Excerpt
	case models.ReactionNotification:
		return actor + " reacted " + v.Emoji + " to post " + v.PostID
	case models.FollowNotification:
		return actor + " followed you"
	case models.GuestbookEntryNotification:
		return actor + " wrote in your guestbook: " + v.Excerpt
	case models.MentionNotification:
		return actor + " mentioned you in post " + v.PostID
	case models.UnknownNotification:
		return actor + " sent a " + v.Type + " notification"
	default:
		return actor + " sent a notification"
	}
}
