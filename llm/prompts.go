package llm

import "fmt"

// ListingInstruction asks for every ring on a listing page.
const ListingInstruction = `You are analyzing a French jewelry website page listing engagement rings.

Extract ALL rings/products visible on this page. For EACH ring you MUST include:
- name: Product name (REQUIRED, the actual ring name, NOT category/collection headers)
- image_urls: Product image URLs (REQUIRED, look for markdown images like ![alt](url).
  Use full absolute URLs starting with https://)
- product_url: Direct link to the product detail page (full absolute URL)
- price: Price as shown on the page (e.g. "3 450 €", "À partir de 1 995 €")
- metal: Metal type (e.g. "or blanc", "platine", "or rose", "or jaune")
- stone: Main stone (e.g. "diamant", "saphir", "rubis", "émeraude")
- carat: Carat weight if shown (e.g. "0.50 ct")
- style: Ring style (e.g. "solitaire", "halo", "pavé", "trois pierres")
- collection: Collection name if mentioned
- description, rating, review_count, sizes, certification: if visible

RULES:
1. Skip navigation elements, footer links, category headers and promotional banners.
   Only extract actual ring products with real names (not "Nouveauté", "Suivez-nous", etc.)
2. Use full absolute URLs (https://...) for all URLs, never relative paths.
3. If a field is not visible on the page, use null.
4. Extract the price exactly as displayed, including "À partir de" prefixes.`

const askInstruction = `You are analyzing a French jewelry website page.

The user asked: %q

Extract ALL rings/products matching the user's request. For EACH ring include:
- name: Product name (REQUIRED)
- image_urls: Product image URLs (full absolute URLs starting with https://)
- product_url: Direct link to the product page (full absolute URL)
- price: Price as displayed (e.g. "3 450 €", "À partir de 1 995 €")
- metal, stone, carat, style, collection: if shown
- description, rating, review_count, sizes, certification: if visible

RULES:
1. Use full absolute URLs (https://...) for all URLs.
2. If a field is not visible, use null.
3. If this is a single product page, extract that one product with maximum detail.
4. If this is a listing page, extract all visible products.`

// AskInstruction builds the instruction for a free-form user request.
func AskInstruction(prompt string) string {
	return fmt.Sprintf(askInstruction, prompt)
}

const outputFormat = `Respond with a JSON array only, no prose. Each element is an object with
these keys (use null when unknown):
{"name": string, "description": string, "price": string, "metal": string,
 "stone": string, "carat": string, "style": string, "collection": string,
 "rating": string, "review_count": string, "certification": string,
 "image_urls": [string], "product_url": string, "sizes": [string]}`

func systemPrompt(instruction string) string {
	return instruction + "\n\n" + outputFormat
}
