package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"document-indexer/internal/config"
	"document-indexer/internal/rag"
	"document-indexer/internal/vectorstore"

	"github.com/rs/zerolog/log"
)

var errInputClosed = errors.New("input closed")

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// ask prints question and returns the trimmed answer.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) namespace() (string, error) {
	return p.ask("Enter namespace (leave empty for the default namespace): ")
}

func (p *prompter) directory() (string, error) {
	dir, err := p.ask(fmt.Sprintf("Enter the directory containing your documents [%s]: ", config.DefaultDirectory))
	if err != nil {
		return "", err
	}
	if dir == "" {
		return config.DefaultDirectory, nil
	}
	return dir, nil
}

// selectIndex lets the user pick an existing index or create one, looping
// until a usable index is chosen.
func (p *prompter) selectIndex(ctx context.Context, store vectorstore.Store, spec func(name string) vectorstore.IndexSpec) (string, error) {
	for {
		names, err := store.ListIndexes(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list indexes: %w", err)
		}
		if len(names) == 0 {
			fmt.Fprintln(p.out, "No indexes found.")
		} else {
			fmt.Fprintln(p.out, "Available indexes:")
			for _, name := range names {
				fmt.Fprintf(p.out, "- %s\n", name)
			}
		}

		choice, err := p.ask("Do you want to (s)elect an existing index or (c)reate a new one? ")
		if err != nil {
			return "", err
		}

		switch strings.ToLower(choice) {
		case "s", "select":
			name, err := p.ask("Enter the name of the index to use: ")
			if err != nil {
				return "", err
			}
			if name == "" {
				fmt.Fprintln(p.out, "Index name cannot be empty.")
				continue
			}
			if slices.Contains(names, name) {
				return name, nil
			}
			answer, err := p.ask(fmt.Sprintf("Index '%s' does not exist. Create it? (y/n): ", name))
			if err != nil {
				return "", err
			}
			if strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes") {
				if _, err := vectorstore.EnsureIndex(ctx, store, spec(name)); err != nil {
					return "", err
				}
				return name, nil
			}
		case "c", "create":
			name, err := p.ask("Enter a name for the new index: ")
			if err != nil {
				return "", err
			}
			if name == "" {
				fmt.Fprintln(p.out, "Index name cannot be empty.")
				continue
			}
			created, err := vectorstore.EnsureIndex(ctx, store, spec(name))
			if err != nil {
				return "", err
			}
			if !created {
				fmt.Fprintf(p.out, "Index '%s' already exists, using it.\n", name)
			}
			return name, nil
		default:
			fmt.Fprintln(p.out, "Invalid choice. Please enter 's' or 'c'.")
		}
	}
}

// queryLoop answers questions until the user exits or input ends.
func (p *prompter) queryLoop(ctx context.Context, r *rag.RAG, namespace string) error {
	for {
		choice, err := p.ask("Do you want to (q)uery or (e)xit? ")
		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.ToLower(choice) {
		case "q", "query":
			text, err := p.ask("Enter your query: ")
			if errors.Is(err, errInputClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			if text == "" {
				continue
			}
			matches, err := r.Query(ctx, text, namespace)
			if err != nil {
				log.Error().Err(err).Msg("Query failed")
				continue
			}
			if err := rag.PrintMatches(p.out, matches); err != nil {
				return err
			}
		case "e", "exit":
			return nil
		default:
			fmt.Fprintln(p.out, "Invalid choice. Please enter 'q' or 'e'.")
		}
	}
}
