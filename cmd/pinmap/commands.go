package main

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string

	outputPath string
	onlyCategories []string
	hideLayers []string

	rootCmd = &cobra.Command{
		Use:           "pinmap",
		Short:         "Command-line client for the collaborative pin map",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// --- Session ---
	loginCmd = &cobra.Command{
		Use:   "login <email> <name>",
		Short: "Sign in to an existing account",
		Args:  cobra.ExactArgs(2),
		RunE:  runLogin,
	}
	registerCmd = &cobra.Command{
		Use:   "register <email> <name>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(2),
		RunE:  runRegister,
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}

	// --- Pins ---
	pinsCmd = &cobra.Command{
		Use:   "pins",
		Short: "List and edit pins",
	}
	pinsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the visible pins and per-category counts",
		Args:  cobra.NoArgs,
		RunE:  runPinsList,
	}
	pinsAddCmd = &cobra.Command{
		Use:   "add <lat> <lng> <type> [comment]",
		Short: "Create a pin",
		Args:  cobra.RangeArgs(3, 4),
		RunE:  runPinsAdd,
	}
	pinsCommentCmd = &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Replace the comment of a pin",
		Args:  cobra.ExactArgs(2),
		RunE:  runPinsComment,
	}
	pinsRmCmd = &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a pin",
		Args:  cobra.ExactArgs(1),
		RunE:  runPinsRm,
	}
	pinsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every pin (administrators only)",
		Args:  cobra.NoArgs,
		RunE:  runPinsClear,
	}

	// --- Overlay ---
	overlayCmd = &cobra.Command{
		Use:   "overlay",
		Short: "Work with the hex overlay",
	}
	overlayExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write the rendered map as GeoJSON",
		Args:  cobra.NoArgs,
		RunE:  runOverlayExport,
	}

	// --- Live ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow pin changes and print counts after each one",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (overrides PINMAP_SERVER_URL)")

	overlayExportCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "output file, - for stdout")
	overlayExportCmd.Flags().StringSliceVar(&hideLayers, "hide", nil, "layer keys to hide")
	pinsListCmd.Flags().StringSliceVar(&onlyCategories, "only", nil, "show only these categories")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)

	pinsCmd.AddCommand(pinsListCmd, pinsAddCmd, pinsCommentCmd, pinsRmCmd, pinsClearCmd)
	rootCmd.AddCommand(pinsCmd)

	overlayCmd.AddCommand(overlayExportCmd)
	rootCmd.AddCommand(overlayCmd)

	rootCmd.AddCommand(watchCmd)
}
