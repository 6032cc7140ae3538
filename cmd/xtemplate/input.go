package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AlexanderGrooff/xtemplate-go/internal/datafile"
	"github.com/AlexanderGrooff/xtemplate-go/pkg/xtemplate"
)

// inputFlags select the template and the data to render it with.
type inputFlags struct {
	templateString string
	dataFile       string
	sets           []string
}

func (in *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&in.templateString, "template-string", "t", "", "Template text to render (alternative to a template file)")
	cmd.Flags().StringVarP(&in.dataFile, "data", "d", "", "YAML or JSON file with render data, - for stdin")
	cmd.Flags().StringArrayVar(&in.sets, "set", nil, "Set a data value, e.g. --set user.name=Ann (repeatable)")
}

// templatePath returns the template file named on the command line, or ""
// when --template-string is used.
func (in *inputFlags) templatePath(args []string) (string, error) {
	switch {
	case in.templateString != "" && len(args) > 0:
		return "", errors.New("give either a template file or --template-string, not both")
	case in.templateString != "":
		return "", nil
	case len(args) == 0:
		return "", errors.New("a template file or --template-string is required")
	}
	return args[0], nil
}

// readTemplate returns the template name and source.
func (in *inputFlags) readTemplate(path string) (string, string, error) {
	if path == "" {
		return "<string>", in.templateString, nil
	}
	if path == "-" {
		if in.dataFile == "-" {
			return "", "", errors.New("stdin cannot be both the template and the data")
		}
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("error reading template from stdin: %w", err)
		}
		return "<stdin>", string(content), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("error reading template file %s: %w", path, err)
	}
	return path, string(content), nil
}

// loadData reads the data file, if any, and applies --set overrides.
func (in *inputFlags) loadData() (interface{}, error) {
	var data interface{} = xtemplate.NewObject(0)
	if in.dataFile != "" {
		loaded, err := datafile.Load(in.dataFile)
		if err != nil {
			return nil, err
		}
		data = loaded
	}
	if len(in.sets) == 0 {
		return data, nil
	}
	root, ok := data.(*xtemplate.Object)
	if !ok {
		return nil, fmt.Errorf("--set requires the data file to hold a mapping, got %T", data)
	}
	for _, s := range in.sets {
		if err := datafile.Set(root, s); err != nil {
			return nil, err
		}
	}
	return root, nil
}
