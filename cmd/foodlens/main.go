// Package main provides the FoodLens CLI.
package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/theamorn/foodlens/classify"
)

const version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "foodlens",
		Short:         "FoodLens - food image classification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(classifyCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func classifyCmd() *cobra.Command {
	var (
		backend string
		top     int
	)

	cmd := &cobra.Command{
		Use:   "classify <model.flm> <labels.csv> <image>",
		Short: "Classify a food photo",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := classify.KindCPU
			switch backend {
			case "cpu":
			case "accelerator":
				kind = classify.KindAccelerator
			default:
				return fmt.Errorf("unknown backend %q (want cpu or accelerator)", backend)
			}

			modelBytes, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			labelFile, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer labelFile.Close()

			imgFile, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer imgFile.Close()
			img, _, err := image.Decode(imgFile)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[2], err)
			}

			h, err := classify.Load(modelBytes, labelFile, classify.Config{Kind: kind})
			if err != nil {
				return err
			}
			defer h.Close()

			if kind != h.Effective() {
				fmt.Fprintf(cmd.ErrOrStderr(), "accelerator unavailable, using %s\n", h.Effective())
			}

			preds, err := classify.ClassifyImage(h, img, top)
			if err != nil {
				return err
			}

			for i, p := range preds {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %-30s %5.1f%%\n", i+1, p.Label, p.Confidence*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "cpu", "execution backend: cpu or accelerator")
	cmd.Flags().IntVar(&top, "top", 5, "number of predictions to print (0 = all)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "FoodLens %s\n", version)
		},
	}
}
