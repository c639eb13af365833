package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/ratescout/models"
)

const dateFormat = "2006-01-02"

// Intermediate shapes use pointers so a missing required field is
// distinguishable from a present-but-zero one. encoding/json silently zeroes
// absent fields otherwise, and silent defaulting is exactly what validation
// exists to prevent.
type dailyRateJSON struct {
	Date     *string        `json:"date"`
	Listings *[]listingJSON `json:"listings"`
}

type listingJSON struct {
	Name  *string `json:"name"`
	Price *string `json:"price"`
}

type roomListJSON struct {
	Rooms *[]string `json:"rooms"`
}

// ValidateDailyRate decodes jsonText into a DailyRate, rejecting missing
// required fields, wrong field types, and unparseable dates. Extra fields
// are tolerated; the collaborator may decorate its output freely.
func ValidateDailyRate(jsonText string) (models.DailyRate, error) {
	var raw dailyRateJSON
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return models.DailyRate{}, decodeError(err)
	}

	if raw.Date == nil {
		return models.DailyRate{}, validationError(`missing required field "date"`)
	}
	date := strings.TrimSpace(*raw.Date)
	if _, err := time.Parse(dateFormat, date); err != nil {
		return models.DailyRate{}, validationErrorf("date %q is not YYYY-MM-DD", date)
	}
	if raw.Listings == nil {
		return models.DailyRate{}, validationError(`missing required field "listings"`)
	}

	listings := make([]models.Listing, 0, len(*raw.Listings))
	for i, l := range *raw.Listings {
		if l.Name == nil {
			return models.DailyRate{}, validationErrorf(`listing %d missing required field "name"`, i)
		}
		if l.Price == nil {
			return models.DailyRate{}, validationErrorf(`listing %d missing required field "price"`, i)
		}
		name := strings.TrimSpace(*l.Name)
		if name == "" {
			return models.DailyRate{}, validationErrorf("listing %d has an empty name", i)
		}
		listings = append(listings, models.Listing{
			Name:  name,
			Price: strings.TrimSpace(*l.Price),
		})
	}

	return models.DailyRate{Date: date, Listings: listings}, nil
}

// ValidateRoomList decodes the discovery payload {"rooms": [...]} into a
// trimmed room-name slice. Blank entries are dropped; a non-string entry or
// a missing rooms field is a validation error.
func ValidateRoomList(jsonText string) ([]string, error) {
	var raw roomListJSON
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, decodeError(err)
	}
	if raw.Rooms == nil {
		return nil, validationError(`missing required field "rooms"`)
	}

	rooms := make([]string, 0, len(*raw.Rooms))
	for _, r := range *raw.Rooms {
		if name := strings.TrimSpace(r); name != "" {
			rooms = append(rooms, name)
		}
	}
	return rooms, nil
}

// decodeError separates schema-shape problems (wrong types, a validation
// concern) from outright malformed JSON (a parse concern). The retry policy
// treats both the same; the logged codes differ.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return models.NewScrapeError(models.ErrCodeValidation,
			fmt.Sprintf("field %q has wrong type %s", typeErr.Field, typeErr.Value), err)
	}
	return models.NewScrapeError(models.ErrCodeParse, "extraction output is not valid JSON", err)
}

func validationError(msg string) error {
	return models.NewScrapeError(models.ErrCodeValidation, msg, nil)
}

func validationErrorf(format string, args ...any) error {
	return validationError(fmt.Sprintf(format, args...))
}
