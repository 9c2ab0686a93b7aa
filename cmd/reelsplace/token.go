package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/utils"
)

// newTokenCommand mints bearer tokens signed with the configured secret,
// mostly for the SERVICE callers of the internal API.
func newTokenCommand(ctx *commandContext) *cobra.Command {
	var role, nickname string
	var ttl int

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an access token for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != model.RoleUser && role != model.RoleService {
				return fmt.Errorf("role must be %s or %s", model.RoleUser, model.RoleService)
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTTLMin
			}
			at, err := utils.NewAccessToken(cfg.JWT.Secret, args[0], nickname, role, ttl)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{"token": at.Token, "expires_at": at.Exp})
		},
	}
	cmd.Flags().StringVar(&role, "role", model.RoleService, "Role claim (USER or SERVICE)")
	cmd.Flags().StringVar(&nickname, "nickname", "", "Nickname claim")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Lifetime in minutes (default: ACCESS_TOKEN_TTL_MIN)")
	return cmd
}
