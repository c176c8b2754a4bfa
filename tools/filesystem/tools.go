package filesystem

import (
	"context"

	"github.com/poiesic/maestro/tools"
)

// Tools returns the file operations as agent tools. Every outcome, errors
// included, arrives as result text.
func (f *FS) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "list_directory",
			Description: "Lists all files and directories in a given path.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"path": tools.StringParam("The path of the directory to list."),
			}, "path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "path")
				if err != nil {
					return "", err
				}
				return f.ListDirectory(path), nil
			},
		},
		{
			Name:        "read_file",
			Description: "Reads the content of a specified file.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"file_path": tools.StringParam("The path of the file to read."),
			}, "file_path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "file_path")
				if err != nil {
					return "", err
				}
				return f.ReadFile(path), nil
			},
		},
		{
			Name:        "write_file",
			Description: "Writes content to a specified file. Creates the file if it does not exist.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"file_path": tools.StringParam("The path of the file to write to."),
				"content":   tools.StringParam("The content to write to the file."),
			}, "file_path", "content"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "file_path")
				if err != nil {
					return "", err
				}
				content, err := tools.String(args, "content")
				if err != nil {
					return "", err
				}
				return f.WriteFile(path, content), nil
			},
		},
		{
			Name:        "create_directory",
			Description: "Creates a new directory at the specified path.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"path": tools.StringParam("The path where the new directory should be created."),
			}, "path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "path")
				if err != nil {
					return "", err
				}
				return f.CreateDirectory(path), nil
			},
		},
		{
			Name:        "delete_file",
			Description: "Deletes a specified file.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"file_path": tools.StringParam("The path of the file to delete."),
			}, "file_path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "file_path")
				if err != nil {
					return "", err
				}
				return f.DeleteFile(path), nil
			},
		},
		{
			Name:        "delete_directory",
			Description: "Deletes a specified directory, optionally with all its contents.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"path":      tools.StringParam("The path of the directory to delete."),
				"recursive": tools.BoolParam("Delete the directory and all its contents."),
			}, "path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "path")
				if err != nil {
					return "", err
				}
				recursive, err := tools.Bool(args, "recursive")
				if err != nil {
					return "", err
				}
				return f.DeleteDirectory(path, recursive), nil
			},
		},
		{
			Name:        "move_item",
			Description: "Moves or renames a file or directory.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"source_path":      tools.StringParam("The current path of the file or directory."),
				"destination_path": tools.StringParam("The new path for the file or directory."),
			}, "source_path", "destination_path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				source, err := tools.String(args, "source_path")
				if err != nil {
					return "", err
				}
				destination, err := tools.String(args, "destination_path")
				if err != nil {
					return "", err
				}
				return f.Move(source, destination), nil
			},
		},
		{
			Name:        "copy_file",
			Description: "Copies a file from source to destination.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"source_path":      tools.StringParam("The path of the file to copy."),
				"destination_path": tools.StringParam("The destination path for the new file."),
			}, "source_path", "destination_path"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				source, err := tools.String(args, "source_path")
				if err != nil {
					return "", err
				}
				destination, err := tools.String(args, "destination_path")
				if err != nil {
					return "", err
				}
				return f.CopyFile(source, destination), nil
			},
		},
		{
			Name:        "replace_in_file",
			Description: "Replaces a string in a file, but only if it appears exactly once. Include enough surrounding context in old_string to uniquely identify the target location.",
			Parameters: tools.ObjectSchema(map[string]*tools.Schema{
				"file_path":  tools.StringParam("The path of the file to modify."),
				"old_string": tools.StringParam("The exact block of text to be replaced, including context."),
				"new_string": tools.StringParam("The new block of text to insert."),
			}, "file_path", "old_string", "new_string"),
			Call: func(_ context.Context, args map[string]any) (string, error) {
				path, err := tools.String(args, "file_path")
				if err != nil {
					return "", err
				}
				oldString, err := tools.String(args, "old_string")
				if err != nil {
					return "", err
				}
				newString, err := tools.String(args, "new_string")
				if err != nil {
					return "", err
				}
				return f.ReplaceInFile(path, oldString, newString), nil
			},
		},
	}
}
