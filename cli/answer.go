package cli

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	actx "go.hackfix.me/mailstore/app/context"
	aerrors "go.hackfix.me/mailstore/app/errors"
	"go.hackfix.me/mailstore/db/models"
)

// The Answer command manages reply templates.
type Answer struct {
	Add struct {
		Name string `arg:"" help:"Name of the answer."`
		Text string `arg:"" help:"Text of the answer."`
	} `kong:"cmd,help='Add a new answer.'"`
	Edit struct {
		ID   uint64  `arg:"" help:"ID of the answer."`
		Name *string `help:"New name of the answer."`
		Text *string `help:"New text of the answer."`
	} `kong:"cmd,help='Change an answer.'"`
	Rm struct {
		ID  uint64 `arg:"" help:"ID of the answer."`
		Yes bool   `short:"y" help:"Don't ask for confirmation."`
	} `kong:"cmd,help='Remove an answer.'"`
	Ls struct{} `kong:"cmd,help='List answers.'"`
}

// Run the answer command.
func (c *Answer) Run(kctx *kong.Context, appCtx *actx.Context) error {
	d, err := appCtx.Store.Get(appCtx.Ctx)
	if err != nil {
		return migrationError(err)
	}
	ctx := appCtx.Ctx

	switch subcommand(kctx) {
	case "add":
		answer := &models.Answer{Name: c.Add.Name, Text: c.Add.Text}
		if err = answer.Save(ctx, d, false); err != nil {
			return aerrors.NewRuntimeError(
				fmt.Sprintf("failed adding answer '%s'", c.Add.Name), err, "")
		}
		_, err = fmt.Fprintf(appCtx.Stdout, "Added answer %d.\n", answer.ID)
	case "edit":
		answer := &models.Answer{ID: c.Edit.ID}
		if err = answer.Load(ctx, d); err != nil {
			return aerrors.NewRuntimeError("failed loading answer", err, "")
		}
		if c.Edit.Name != nil {
			answer.Name = *c.Edit.Name
		}
		if c.Edit.Text != nil {
			answer.Text = *c.Edit.Text
		}
		if err = answer.Save(ctx, d, true); err != nil {
			return aerrors.NewRuntimeError(
				fmt.Sprintf("failed updating answer %d", c.Edit.ID), err, "")
		}
	case "rm":
		answer := &models.Answer{ID: c.Rm.ID}
		if err = answer.Load(ctx, d); err != nil {
			return aerrors.NewRuntimeError("failed loading answer", err, "")
		}
		if !c.Rm.Yes {
			ok, cerr := confirm(appCtx, fmt.Sprintf("Remove answer '%s'?", answer.Name))
			if cerr != nil {
				return cerr
			}
			if !ok {
				return nil
			}
		}
		if err = answer.Delete(ctx, d); err != nil {
			return aerrors.NewRuntimeError(
				fmt.Sprintf("failed removing answer %d", c.Rm.ID), err, "")
		}
	case "ls":
		answers, lerr := models.Answers(ctx, d, nil)
		if lerr != nil {
			return aerrors.NewRuntimeError("failed listing answers", lerr, "")
		}

		data := make([][]string, len(answers))
		for i, a := range answers {
			text, _, _ := strings.Cut(a.Text, "\n")
			data[i] = []string{strconv.FormatUint(a.ID, 10), a.Name, text}
		}

		if len(data) > 0 {
			err = renderTable([]string{"ID", "Name", "Text"}, data, appCtx.Stdout)
		}
	}

	return err
}

// confirm asks a yes/no question, and reads the answer from stdin. Anything
// other than "y" or "yes" is a no.
func confirm(appCtx *actx.Context, question string) (bool, error) {
	if _, err := fmt.Fprintf(appCtx.Stdout, "%s [y/N] ", question); err != nil {
		return false, err
	}

	scanner := bufio.NewScanner(appCtx.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, aerrors.NewRuntimeError("failed reading confirmation", err, "")
		}
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
