package vision

// systemPrompt frames the model as a counting assistant and demands
// JSON-only output. Shared by both prompt variants.
const systemPrompt = `You are an expert inventory counter with perfect precision. When counting items, you must:
1. Divide the image into a 3x3 grid (9 sections)
2. Count items in each section separately and show your work
3. Sum the sections and verify the total makes sense
4. Provide a confidence score based on image clarity and item visibility
5. Always respond in valid JSON format`

// gridPrompt asks for per-section counts plus a verified total. The
// section sum is trusted over the stated total downstream.
const gridPrompt = `Count and identify every product in this image for restaurant inventory.

Use the GRID METHOD — mentally divide the image into a 3x3 grid and count each product type per section:
- Top-left | Top-center | Top-right
- Middle-left | Middle-center | Middle-right
- Bottom-left | Bottom-center | Bottom-right

For each distinct product type, count units in EACH section, then sum for the total.

Return ONLY this JSON (no markdown, no explanation):
{
  "items": [
    {
      "class_name": "Coca-Cola 12oz can",
      "sections": {
        "top_left": 0,
        "top_center": 0,
        "top_right": 0,
        "middle_left": 0,
        "middle_center": 0,
        "middle_right": 0,
        "bottom_left": 0,
        "bottom_center": 0,
        "bottom_right": 0
      },
      "total": 0,
      "confidence": "high",
      "notes": "any counting challenges"
    }
  ]
}

Rules:
- "class_name": Brand, size, container type (e.g., "Pepsi 12oz can"). Use generic names if brand unclear.
- "sections": Count of THIS item type in each grid section. The sum MUST equal "total".
- "total": Exact total count. Verify it equals the sum of all 9 sections.
- "confidence": "high" (clearly visible, easy count), "medium" (some obstruction/overlap), or "low" (significant uncertainty).
- "notes": Mention any counting challenges (hidden items, overlapping, unclear brands).
- Group identical products. Do NOT list each unit separately.
- Empty image = {"items": []}`

// flatPrompt is the simpler variant: one count and one numeric
// confidence per product type, no spatial breakdown.
const flatPrompt = `Count and identify every product in this image for restaurant inventory.

Return ONLY this JSON (no markdown, no explanation):
{
  "items": [
    {
      "class_name": "Coca-Cola 12oz can",
      "count": 0,
      "confidence": 0.9,
      "notes": "any counting challenges"
    }
  ]
}

Rules:
- "class_name": Brand, size, container type (e.g., "Pepsi 12oz can"). Use generic names if brand unclear.
- "count": Exact number of units of THIS product type.
- "confidence": Number between 0 and 1 reflecting image clarity and item visibility.
- "notes": Mention any counting challenges (hidden items, overlapping, unclear brands).
- Group identical products. Do NOT list each unit separately.
- Empty image = {"items": []}`
