package tools

import (
	"fmt"
	"strings"

	"customer-support-agent/internal/domain"
)

type ProductInfoInput struct {
	ProductType string `json:"product_type" jsonschema:"Electronics product type (e.g., 'laptops', 'smartphones', 'headphones', 'monitors')"`
}

type productSheet struct {
	warranty      string
	specs         string
	features      string
	compatibility string
	support       string
}

var productSheets = map[string]productSheet{
	"laptops": {
		warranty:      "1-year manufacturer warranty + optional extended coverage",
		specs:         "Intel/AMD processors, 8-32GB RAM, SSD storage, various display sizes",
		features:      "Backlit keyboards, USB-C/Thunderbolt, Wi-Fi 6, Bluetooth 5.0",
		compatibility: "Windows 11, macOS, Linux support varies by model",
		support:       "Technical support and driver updates included",
	},
	"smartphones": {
		warranty:      "1-year manufacturer warranty",
		specs:         "5G/4G connectivity, 128GB-1TB storage, multiple camera systems",
		features:      "Wireless charging, water resistance, biometric security",
		compatibility: "iOS/Android, carrier unlocked options available",
		support:       "Software updates and technical support included",
	},
	"headphones": {
		warranty:      "1-year manufacturer warranty",
		specs:         "Wired/wireless options, noise cancellation, 20Hz-20kHz frequency",
		features:      "Active noise cancellation, touch controls, voice assistant",
		compatibility: "Bluetooth 5.0+, 3.5mm jack, USB-C charging",
		support:       "Firmware updates via companion app",
	},
	"monitors": {
		warranty:      "3-year manufacturer warranty",
		specs:         "4K/1440p/1080p resolutions, IPS/OLED panels, various sizes",
		features:      "HDR support, high refresh rates, adjustable stands",
		compatibility: "HDMI, DisplayPort, USB-C inputs",
		support:       "Color calibration and technical support",
	},
}

// GetProductInfo returns the technical sheet for a product type.
func GetProductInfo(in ProductInfoInput) domain.ToolResult {
	sheet, ok := productSheets[strings.ToLower(strings.TrimSpace(in.ProductType))]
	if !ok {
		return domain.TextResult(fmt.Sprintf(
			"Technical specifications for %s not available. "+
				"Please contact our technical support team for detailed product "+
				"information and compatibility requirements.",
			in.ProductType,
		))
	}
	return domain.TextResult(fmt.Sprintf(
		"Technical Information - %s:\n\n"+
			"* Warranty: %s\n"+
			"* Specifications: %s\n"+
			"* Key Features: %s\n"+
			"* Compatibility: %s\n"+
			"* Support: %s",
		titleCase(in.ProductType),
		sheet.warranty, sheet.specs, sheet.features, sheet.compatibility, sheet.support,
	))
}
