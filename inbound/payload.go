package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-orderbus/core"
)

// NonFieldErrors collects errors that do not belong to a single field.
const NonFieldErrors = "non_field_errors"

const (
	msgRequired       = "This field is required."
	msgInvalidJSON    = "Invalid JSON body."
	msgExpectedObject = "Invalid data. Expected a dictionary."
	msgItemsRequired  = "At least one item is required."
	msgInvalidInteger = "A valid integer is required."
	msgMinQuantity    = "Ensure this value is greater than or equal to 1."
	msgMoneyString    = "Must be a decimal string, e.g. \"20.00\"."
	msgMoneyInvalid   = "A valid number is required."
	msgMoneyPlaces    = "Ensure that there are no more than 2 decimal places."
	msgMoneyDigits    = "Ensure that there are no more than 10 digits in total."
	msgMoneyNegative  = "Ensure this value is greater than or equal to 0."
)

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (c customerPayload) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required.Error(msgRequired), validation.RuneLength(0, 255)),
		validation.Field(&c.Email, validation.Required.Error(msgRequired), is.EmailFormat.Error("Enter a valid email address."), validation.RuneLength(0, 254)),
	)
}

type itemPayload struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  json.RawMessage `json:"quantity"`
	UnitPrice json.RawMessage `json:"unit_price"`
}

func (i itemPayload) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.SKU, validation.Required.Error(msgRequired), validation.RuneLength(0, 100)),
		validation.Field(&i.Name, validation.Required.Error(msgRequired), validation.RuneLength(0, 255)),
		validation.Field(&i.Quantity, validation.By(quantityRule)),
		validation.Field(&i.UnitPrice, validation.By(moneyRule)),
	)
}

type orderPayload struct {
	OrderID         string           `json:"order_id"`
	IdempotencyKey  string           `json:"idempotency_key"`
	Customer        *customerPayload `json:"customer"`
	Items           []itemPayload    `json:"items"`
	ShippingAddress string           `json:"shipping_address"`
	Total           json.RawMessage  `json:"total"`
}

func (p orderPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.OrderID, validation.Required.Error(msgRequired), validation.RuneLength(0, 255)),
		validation.Field(&p.IdempotencyKey, validation.RuneLength(0, 255)),
		validation.Field(&p.Customer, validation.Required.Error(msgRequired)),
		validation.Field(&p.Items, validation.Required.Error(msgItemsRequired)),
		validation.Field(&p.ShippingAddress, validation.Required.Error(msgRequired)),
		validation.Field(&p.Total, validation.By(moneyRule)),
	)
}

// trim strips surrounding whitespace from every string field so that a
// blank value fails the required rules.
func (p *orderPayload) trim() {
	p.OrderID = strings.TrimSpace(p.OrderID)
	p.IdempotencyKey = strings.TrimSpace(p.IdempotencyKey)
	p.ShippingAddress = strings.TrimSpace(p.ShippingAddress)
	if p.Customer != nil {
		p.Customer.Name = strings.TrimSpace(p.Customer.Name)
		p.Customer.Email = strings.TrimSpace(p.Customer.Email)
	}
	for index := range p.Items {
		p.Items[index].SKU = strings.TrimSpace(p.Items[index].SKU)
		p.Items[index].Name = strings.TrimSpace(p.Items[index].Name)
	}
}

// DecodeOrderPayload parses and validates a webhook body. Validation failures
// are returned as a validation error whose field paths are dotted, e.g.
// items.0.quantity or customer.email.
func DecodeOrderPayload(body []byte) (core.CreateOrderInput, error) {
	var payload orderPayload
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&payload); err != nil {
		return core.CreateOrderInput{}, decodeError(err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return core.CreateOrderInput{}, invalidPayload(goerrors.FieldError{Field: NonFieldErrors, Message: msgInvalidJSON})
	}

	payload.trim()
	if err := payload.Validate(); err != nil {
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return core.CreateOrderInput{}, core.InternalError(err, "validate order payload")
		}
		return core.CreateOrderInput{}, invalidPayload(flattenValidation(err)...)
	}
	return payload.toInput(), nil
}

func (p orderPayload) toInput() core.CreateOrderInput {
	total, _ := parseMoney(p.Total)
	in := core.CreateOrderInput{
		ExternalRef:    p.OrderID,
		IdempotencyKey: p.IdempotencyKey,
		Customer: core.Customer{
			Name:  p.Customer.Name,
			Email: p.Customer.Email,
		},
		ShippingAddress: p.ShippingAddress,
		Total:           total,
		Items:           make([]core.CreateOrderItemInput, 0, len(p.Items)),
	}
	for _, item := range p.Items {
		quantity, _ := parseQuantity(item.Quantity)
		unitPrice, _ := parseMoney(item.UnitPrice)
		in.Items = append(in.Items, core.CreateOrderItemInput{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  quantity,
			UnitPrice: unitPrice,
		})
	}
	return in.Normalize()
}

func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func quantityRule(value any) error {
	raw, _ := value.(json.RawMessage)
	quantity, err := parseQuantity(raw)
	if err != nil {
		return err
	}
	if quantity < 1 {
		return validation.NewError("validation_min_quantity", msgMinQuantity)
	}
	return nil
}

// parseQuantity accepts an integral JSON number or a numeric string.
func parseQuantity(raw json.RawMessage) (int, error) {
	if isMissing(raw) {
		return 0, validation.NewError("validation_required", msgRequired)
	}
	text := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	quantity, err := strconv.Atoi(text)
	if err != nil {
		return 0, validation.NewError("validation_integer", msgInvalidInteger)
	}
	return quantity, nil
}

func moneyRule(value any) error {
	raw, _ := value.(json.RawMessage)
	amount, err := parseMoney(raw)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return validation.NewError("validation_money_min", msgMoneyNegative)
	}
	return nil
}

func parseMoney(raw json.RawMessage) (core.Money, error) {
	if isMissing(raw) {
		return core.Money{}, validation.NewError("validation_required", msgRequired)
	}
	var amount core.Money
	err := json.Unmarshal(raw, &amount)
	switch {
	case err == nil:
		return amount, nil
	case errors.Is(err, core.ErrMoneyNotString):
		return core.Money{}, validation.NewError("validation_money_string", msgMoneyString)
	case errors.Is(err, core.ErrMoneyTooManyPlaces):
		return core.Money{}, validation.NewError("validation_money_places", msgMoneyPlaces)
	case errors.Is(err, core.ErrMoneyTooManyDigits):
		return core.Money{}, validation.NewError("validation_money_digits", msgMoneyDigits)
	default:
		return core.Money{}, validation.NewError("validation_money", msgMoneyInvalid)
	}
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := strings.TrimSpace(typeErr.Field)
		if field == "" {
			return invalidPayload(goerrors.FieldError{Field: NonFieldErrors, Message: msgExpectedObject})
		}
		return invalidPayload(goerrors.FieldError{
			Field:   field,
			Message: fmt.Sprintf("Invalid type. Expected %s.", describeKind(typeErr.Type.Kind().String())),
		})
	}
	return invalidPayload(goerrors.FieldError{Field: NonFieldErrors, Message: msgInvalidJSON})
}

func describeKind(kind string) string {
	switch kind {
	case "string":
		return "a string"
	case "slice":
		return "a list"
	case "struct", "map", "ptr":
		return "an object"
	default:
		return kind
	}
}

func invalidPayload(fields ...goerrors.FieldError) error {
	return core.ValidationError("invalid order payload", fields...)
}

// flattenValidation walks nested ozzo errors into sorted dotted field paths.
func flattenValidation(err error) []goerrors.FieldError {
	var fields []goerrors.FieldError
	var walk func(prefix string, err error)
	walk = func(prefix string, err error) {
		var nested validation.Errors
		if errors.As(err, &nested) {
			for key, child := range nested {
				if child == nil {
					continue
				}
				walk(joinPath(prefix, key), child)
			}
			return
		}
		field := prefix
		if field == "" {
			field = NonFieldErrors
		}
		fields = append(fields, goerrors.FieldError{Field: field, Message: validationMessage(err)})
	}
	walk("", err)
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Field < fields[j].Field
	})
	return fields
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func validationMessage(err error) string {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "Invalid value."
	}
	first := strings.ToUpper(message[:1])
	message = first + message[1:]
	if !strings.HasSuffix(message, ".") {
		message += "."
	}
	return message
}
