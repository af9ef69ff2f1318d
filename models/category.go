package models

import (
	"regexp"

	"github.com/go-playground/validator"
)

type Category string

const (
	CategoryTop       Category = "top"
	CategoryBottom    Category = "bottom"
	CategoryShoes     Category = "shoes"
	CategoryOuterwear Category = "outerwear"
	CategoryAccessory Category = "accessory"
)

// Required categories for a complete outfit, in fill priority order.
// Outerwear and accessories are optional extras.
var RequiredCategories = []Category{CategoryTop, CategoryBottom, CategoryShoes}

var OptionalCategories = []Category{CategoryOuterwear, CategoryAccessory}

func (c *Category) Scan(value interface{}) error {
	*c = Category(value.(string))
	return nil
}

func (c Category) Value() string {
	return string(c)
}

func (c Category) Valid() bool {
	switch c {
	case CategoryTop, CategoryBottom, CategoryShoes, CategoryOuterwear, CategoryAccessory:
		return true
	}
	return false
}

func (c Category) Required() bool {
	for _, required := range RequiredCategories {
		if c == required {
			return true
		}
	}
	return false
}

func ValidateCategory(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	matched, _ := regexp.MatchString("^top|bottom|shoes|outerwear|accessory$", string(value))
	return matched
}

type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
	SeasonWinter Season = "winter"
	SeasonAny    Season = "any"
)

func (s *Season) Scan(value interface{}) error {
	*s = Season(value.(string))
	return nil
}

func (s Season) Value() string {
	return string(s)
}

func (s Season) Valid() bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonFall, SeasonWinter, SeasonAny:
		return true
	}
	return false
}

func ValidateSeason(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	matched, _ := regexp.MatchString("^spring|summer|fall|winter|any$", string(value))
	return matched
}
