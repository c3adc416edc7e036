package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmuoria/cv-inbox-screener/internal/agent"
	"github.com/fmuoria/cv-inbox-screener/internal/auth"
	"github.com/fmuoria/cv-inbox-screener/internal/config"
	"github.com/fmuoria/cv-inbox-screener/internal/ingestion"
	"github.com/fmuoria/cv-inbox-screener/internal/models"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Import resumes from Gmail or a local directory",
	Long: "Import resumes from Gmail using a locally cached OAuth token, or from a directory of PDF and Word files.\n" +
		"Records are written to the configured database.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return fetch(cmd)
	},
}

type fetchFlags struct {
	user     string
	days     int
	keywords []string
	dir      string
	sender   string
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addFetchFlags(fetchCmd)
}

func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "local", "user id the records belong to")
	cmd.Flags().Int("days", 0, "how many days back to search (default harvest.default-days)")
	cmd.Flags().StringSliceP("keyword", "k", nil, "extra search keyword, may be repeated")
	cmd.Flags().String("dir", "", "import files from this directory instead of Gmail")
	cmd.Flags().String("sender", "", "sender address recorded for files imported with --dir")
}

func readFetchFlags(cmd *cobra.Command) fetchFlags {
	var f fetchFlags
	f.user, _ = cmd.Flags().GetString("user")
	f.days, _ = cmd.Flags().GetInt("days")
	f.keywords, _ = cmd.Flags().GetStringSlice("keyword")
	f.dir, _ = cmd.Flags().GetString("dir")
	f.sender, _ = cmd.Flags().GetString("sender")
	return f
}

func fetch(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.ValidateHarvest(); err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		log.Warn("fetched CVs will be lost when the command exits, set database.url to keep them")
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	screener := agent.NewScreener(store, newHarvester(store, cfg, log), nil, nil, log)
	screener.SetProgressCallback(printProgress(cmd.ErrOrStderr()))

	resp, err := runFetch(ctx, cmd, cfg, screener, readFetchFlags(cmd))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}

// runFetch registers the requested mailbox on screener and harvests it
func runFetch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, screener *agent.Screener, f fetchFlags) (models.BatchResponse, error) {
	days := f.days
	if days == 0 {
		days = cfg.Harvest.DefaultDays
	}
	req := models.FetchRequest{DaysBack: days, Keywords: f.keywords}

	if f.dir != "" {
		mb, err := ingestion.NewDirMailbox(f.dir, f.sender)
		if err != nil {
			return models.BatchResponse{}, err
		}
		screener.RegisterMailbox(agent.ProviderDirectory, func(context.Context, string) (ingestion.Mailbox, error) {
			return mb, nil
		})
		req.Provider = agent.ProviderDirectory
		return screener.FetchCVs(ctx, f.user, req)
	}

	oauthCfg, err := ingestion.OAuthConfigFromFile(cfg.Gmail.CredentialsFile)
	if err != nil {
		return models.BatchResponse{}, err
	}

	tok, err := ingestion.TokenFromFile(cfg.Gmail.TokenFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return models.BatchResponse{}, err
		}
		tok, err = tokenFromWeb(ctx, oauthCfg, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return models.BatchResponse{}, err
		}
		if err := ingestion.SaveToken(cfg.Gmail.TokenFile, tok); err != nil {
			return models.BatchResponse{}, err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved credential file to: %s\n", cfg.Gmail.TokenFile)
	}

	creds := auth.NewCredentialStore(oauthCfg)
	creds.Put(f.user, tok)
	screener.RegisterMailbox(agent.ProviderGmail, agent.GmailOpener(creds))

	req.Provider = agent.ProviderGmail
	return screener.FetchCVs(ctx, f.user, req)
}

// tokenFromWeb asks the user to authorize access in a browser and paste the
// resulting code.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}
