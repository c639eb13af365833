package llm

import (
	"fmt"
	"strings"
)

// discoveryPrompt instructs the model to enumerate every room type on the
// page. The object wrapper (rather than a bare array) keeps the output
// recoverable by the same object salvage used for pricing responses.
const discoveryPrompt = `Extract ALL unique room types/names from this hotel listing page.

Instructions:
1. Find EVERY distinct room type mentioned anywhere on the page
2. Look for room names in headers, room cards, price listings, dropdown menus and filters
3. Extract the EXACT room name as it appears
4. Include ALL rooms, even if sold out, unavailable, or shown without a price
5. Do NOT include prices, descriptions or amenities

Output format:
Return ONLY a JSON object with a single "rooms" key holding unique room names:
{"rooms": ["Room Type 1", "Room Type 2", "Room Type 3"]}

No explanations, no additional text, just the JSON object.`

// pricingPrompt instructs the model to price every known room for one date.
// The catalog is enumerated so the model accounts for each room explicitly;
// rooms that vanished from the page come back as "Sold Out" rather than
// being silently dropped.
func pricingPrompt(hotel string, date string, rooms []string) string {
	var list strings.Builder
	for i, room := range rooms {
		fmt.Fprintf(&list, "   %d. %s\n", i+1, room)
	}

	return fmt.Sprintf(`Extract room prices for %s on %s.

This hotel has EXACTLY %d room types:
%s
CRITICAL INSTRUCTIONS:
1. You MUST account for ALL %d room types listed above
2. For each room, extract:
   - The EXACT room name as listed above
   - The price (e.g., "¥14,618", "$150"), price and currency only, without any "total" text
   - If sold out: use "Sold Out"
   - If a price is not shown: use "Price Not Available"
   - If the room is not found on the page: use "Sold Out"
3. Check the ENTIRE page content thoroughly
4. Your response MUST include ALL %d rooms

Output format:
{
  "date": "%s",
  "listings": [
    {"name": "exact room name", "price": "price or status"}
  ]
}

Return ONLY the JSON object, no explanations.`, hotel, date, len(rooms), list.String(), len(rooms), len(rooms), date)
}
