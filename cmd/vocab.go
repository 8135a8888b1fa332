package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Print the active vocabulary as YAML",
	Long:  "Prints the volume units, package words and price markers in effect, either the built-in set or the file at pipeline.vocabulary_path. The output is a valid vocabulary file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVocabulary(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(vocabCmd)
}

func printVocabulary(out io.Writer) error {
	v, err := loadVocabulary()
	if err != nil {
		return err
	}
	data, err := v.Marshal()
	if err != nil {
		return eris.Wrap(err, "vocab: marshal")
	}
	_, err = out.Write(data)
	return eris.Wrap(err, "vocab: write")
}
