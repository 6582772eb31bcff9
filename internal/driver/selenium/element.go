package selenium

import (
	"context"
	"errors"
	"strings"

	"github.com/tebeka/selenium"

	"github.com/xkilldash9x/dusk/api/schemas"
)

type element struct {
	we selenium.WebElement
}

var _ schemas.Element = (*element)(nil)

func wrap(found []selenium.WebElement) []schemas.Element {
	elements := make([]schemas.Element, 0, len(found))
	for _, we := range found {
		elements = append(elements, &element{we: we})
	}
	return elements
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(e.we.Click())
}

func (e *element) SendKeys(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(e.we.SendKeys(keys))
}

func (e *element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(e.we.Clear())
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.we.Text()
	return text, mapError(err)
}

// Attribute reports a null attribute, which the client surfaces as an error, as absent.
func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value, err := e.we.GetAttribute(name)
	if err != nil {
		if strings.Contains(err.Error(), "nil return value") {
			return "", false, nil
		}
		return "", false, mapError(err)
	}
	return value, true, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tag, err := e.we.TagName()
	return strings.ToLower(tag), mapError(err)
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	shown, err := e.we.IsDisplayed()
	return shown, mapError(err)
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	on, err := e.we.IsEnabled()
	return on, mapError(err)
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	on, err := e.we.IsSelected()
	return on, mapError(err)
}

func (e *element) FindElements(ctx context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := e.we.FindElements(string(by), value)
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, schemas.ErrNoSuchElement) {
			return nil, nil
		}
		return nil, mapped
	}
	return wrap(found), nil
}
