package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/selfie2snap/selfie2snap/internal/config"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "View or change the shared preferences",
	Long: `View or change the preferences shared by the HTTP API and the
interactive view: the color theme and the cookie consent answer.

Without arguments, displays the stored preferences.`,
	RunE: runPrefsShow,
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored preferences",
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:     "set",
	Short:   "Change preferences",
	Example: "  selfie2snap prefs set --theme light\n  selfie2snap prefs set --cookie-consent essential",
	RunE:    runPrefsSet,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)

	prefsSetCmd.Flags().String("theme", "", "color theme: dark or light")
	prefsSetCmd.Flags().String("cookie-consent", "", "cookie consent: all or essential")
	prefsSetCmd.MarkFlagsOneRequired("theme", "cookie-consent")
}

func runPrefsShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	prefs, err := openSettings(cmd.Context(), cfg.Paths, nil, nil)
	if err != nil {
		return err
	}

	p := prefs.Preferences()
	consent := string(p.CookieConsent)
	if consent == "" {
		consent = "(not answered)"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Preferences file: %s\n\n", cfg.Paths.ResolvePreferencesFile())
	fmt.Fprintf(out, "theme: %s\n", p.Theme)
	fmt.Fprintf(out, "cookie_consent: %s\n", consent)
	return nil
}

func runPrefsSet(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	prefs, err := openSettings(cmd.Context(), cfg.Paths, nil, nil)
	if err != nil {
		return err
	}

	theme, _ := cmd.Flags().GetString("theme")
	consent, _ := cmd.Flags().GetString("cookie-consent")
	p, err := prefs.Update(cmd.Context(), theme, consent)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved theme=%s cookie_consent=%s to %s\n",
		p.Theme, p.CookieConsent, cfg.Paths.ResolvePreferencesFile())
	return nil
}
