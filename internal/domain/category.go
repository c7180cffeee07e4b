package domain

import "fmt"

// Category is a taxonomic partition of the shared repository. Each
// category owns one database.csv and one logfiles directory.
type Category string

const (
	CategoryMammals Category = "mammals"
	CategoryBirds   Category = "birds"
	CategoryPlants  Category = "plants"
	CategoryOther   Category = "other"
)

// Categories lists the known partitions in a fixed order.
var Categories = []Category{CategoryMammals, CategoryBirds, CategoryPlants, CategoryOther}

// ParseCategory validates a category name from user input.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (expected one of mammals, birds, plants, other)", s)
}

func (c Category) String() string {
	return string(c)
}
