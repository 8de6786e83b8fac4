// Package models contains the GORM persistence models backing the domain
// repositories. Domain types stay free of ORM tags; each model converts with
// ToDomain and a ...FromDomain constructor.
//
// Tables:
//   - providers, provider_products: carrier registry state and catalogs
//   - best_offers, pricing_settings: materialized pricing
//   - orders, order_items, provider_syncs: fulfillment
package models
