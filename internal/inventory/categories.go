package inventory

import "sort"

// CategoryOther groups materials missing from the registry.
const CategoryOther = "Other"

var materialCategories = map[string][]string{
	"Dairy":              {"Milk", "Whipped Cream"},
	"Tea & Coffee":       {"Tea Powder", "Coffee Powder", "Green Tea Leaves"},
	"Spices & Flavours":  {"Ginger", "Cardamom / Elaichi", "Masala Mix"},
	"Sweeteners & Acids": {"Sugar", "Lemon Juice"},
	"Cold & Beverages":   {"Ice", "Soda Water", "Fruit Syrup Assorted", "Orange Juice"},
	"Coffee Extras":      {"Chocolate Powder", "Hazelnut Syrup"},
	"Milkshake Mix-ins":  {"Biscoff Spread", "Nutella", "Oreo Cookies", "Brownie", "Dry Fruits Mix", "Banana"},
	"Fresh Fruits":       {"Watermelon", "Apple", "Carrot", "Beetroot", "Pineapple", "Mixed Seasonal Fruits", "Mixed Fruits", "Mint Leaves"},
	"Packaging":          {"Tea Cups", "Coffee Cups", "Milkshake Cups", "Juice Cups", "Mocktail Glasses", "Straws"},
}

var materialToCategory = func() map[string]string {
	out := make(map[string]string)
	for category, names := range materialCategories {
		for _, name := range names {
			out[name] = category
		}
	}
	return out
}()

// CategoryOf returns the registry category of a material name.
func CategoryOf(materialName string) string {
	if category, ok := materialToCategory[materialName]; ok {
		return category
	}
	return CategoryOther
}

// Categories lists registry category names in sorted order.
func Categories() []string {
	out := make([]string, 0, len(materialCategories))
	for category := range materialCategories {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}
