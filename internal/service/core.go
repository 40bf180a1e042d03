package service

// Core bundles the shop services into the single in-process entry point
// handed to chat front-ends and webhook handlers.
type Core struct {
	Users     *UserService
	Catalog   *CatalogService
	Inventory *InventoryService
	Promo     *PromoService
	Wallet    *WalletService
	Referral  *ReferralService
	Purchase  *PurchaseService
	Replenish *ReplenishService
}
