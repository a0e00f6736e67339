package batch

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ncmdump"
)

// Extension is the container file extension picked up by ScanTasks.
const Extension = ".ncm"

// ReadLines reads path as a newline-separated list, dropping blank lines
// and surrounding whitespace.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed opening list %s: %s", ncmdump.ErrConfig, path, err)
	}

	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed reading list %s: %s", ncmdump.ErrConfig, path, err)
	}

	return lines, nil
}

// PairLists zips an input list with an output list into tasks. Entries
// pair up positionally and are taken verbatim, so the output entries are
// stems without an extension.
func PairLists(inputs, outputs []string) ([]Task, error) {
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: empty file list", ncmdump.ErrConfig)
	} else if len(inputs) != len(outputs) {
		return nil, fmt.Errorf("%w: input list has %d entries, output list has %d", ncmdump.ErrConfig, len(inputs), len(outputs))
	}

	tasks := make([]Task, len(inputs))
	for i := range inputs {
		tasks[i] = Task{Input: inputs[i], Output: outputs[i]}
	}

	return tasks, nil
}

// ScanTasks walks root recursively and builds a task for every container
// found, all writing into outDir under the container's stem.
func ScanTasks(root, outDir string) ([]Task, error) {
	var tasks []Task
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		} else if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
			return nil
		}

		stem := strings.TrimSuffix(d.Name(), Extension)
		tasks = append(tasks, Task{Input: path, Output: filepath.Join(outDir, stem)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed scanning %s: %s", ncmdump.ErrConfig, root, err)
	}

	return tasks, nil
}

// WriteLists writes the tasks back out as matching input and output list
// files, one entry per line.
func WriteLists(tasks []Task, inputPath, outputPath string) error {
	var inputs, outputs strings.Builder
	for _, task := range tasks {
		inputs.WriteString(task.Input + "\n")
		outputs.WriteString(task.Output + "\n")
	}

	if err := os.WriteFile(inputPath, []byte(inputs.String()), 0644); err != nil {
		return fmt.Errorf("failed writing %s: %w", inputPath, err)
	}

	if err := os.WriteFile(outputPath, []byte(outputs.String()), 0644); err != nil {
		return fmt.Errorf("failed writing %s: %w", outputPath, err)
	}

	return nil
}
