package config

import "cotwatch/internal/positions"

// DefaultGroups is the built-in instrument taxonomy used when the config file
// does not define groups.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Key:      "commodities",
			ListKey:  "commodity_list",
			Kind:     positions.Disaggregated,
			Required: true,
			Instruments: []InstrumentConfig{
				{Code: "gold", Name: "黄金", NameEN: "GOLD (COMEX)", Pattern: `^GOLD - COMMODITY EXCHANGE`},
				{Code: "silver", Name: "白银", NameEN: "SILVER (COMEX)", Pattern: `^SILVER - COMMODITY EXCHANGE`},
				{Code: "copper", Name: "铜", NameEN: "COPPER (COMEX)", Pattern: `^COPPER.* - COMMODITY EXCHANGE`},
				{Code: "platinum", Name: "铂金", NameEN: "PLATINUM (NYMEX)", Pattern: `^PLATINUM - NEW YORK MERCANTILE`},
				{Code: "palladium", Name: "钯金", NameEN: "PALLADIUM (NYMEX)", Pattern: `^PALLADIUM - NEW YORK MERCANTILE`},
				{Code: "micro_gold", Name: "微型黄金", NameEN: "MICRO GOLD (COMEX)", Pattern: `^MICRO GOLD - COMMODITY EXCHANGE`},
				{Code: "aluminum", Name: "铝", NameEN: "ALUMINUM (COMEX)", Pattern: `^ALUMINUM - COMMODITY EXCHANGE`},
				{Code: "cobalt", Name: "钴", NameEN: "COBALT (COMEX)", Pattern: `^COBALT - COMMODITY EXCHANGE`},
				{Code: "lithium", Name: "氢氧化锂", NameEN: "LITHIUM HYDROXIDE (COMEX)", Pattern: `^LITHIUM HYDROXIDE - COMMODITY EXCHANGE`},
				{Code: "wti", Name: "WTI原油", NameEN: "WTI CRUDE OIL (NYMEX)", Pattern: `^WTI-PHYSICAL - NEW YORK MERCANTILE`},
				{Code: "palm_oil", Name: "棕榈油", NameEN: "PALM OIL (CME)", Pattern: `^USD Malaysian Crude Palm Oil`},
			},
		},
		{
			Key:     "tff_instruments",
			ListKey: "tff_instrument_list",
			Kind:    positions.TFF,
			Instruments: []InstrumentConfig{
				{Code: "euro", Name: "欧元", NameEN: "EURO FX (CME)", Pattern: `^EURO FX - CHICAGO MERCANTILE`},
				{Code: "gbp", Name: "英镑", NameEN: "BRITISH POUND (CME)", Pattern: `^BRITISH POUND - CHICAGO MERCANTILE`},
				{Code: "jpy", Name: "日元", NameEN: "JAPANESE YEN (CME)", Pattern: `^JAPANESE YEN - CHICAGO MERCANTILE`},
				{Code: "aud", Name: "澳元", NameEN: "AUSTRALIAN DOLLAR (CME)", Pattern: `^AUSTRALIAN DOLLAR - CHICAGO MERCANTILE`},
				{Code: "cad", Name: "加元", NameEN: "CANADIAN DOLLAR (CME)", Pattern: `^CANADIAN DOLLAR - CHICAGO MERCANTILE`},
				{Code: "chf", Name: "瑞郎", NameEN: "SWISS FRANC (CME)", Pattern: `^SWISS FRANC - CHICAGO MERCANTILE`},
				{Code: "bitcoin", Name: "比特币", NameEN: "BITCOIN (CME)", Pattern: `^BITCOIN - CHICAGO MERCANTILE`},
				{Code: "sp500", Name: "标普500", NameEN: "S&P 500 (CME)", Pattern: `^S&P 500 Consolidated`},
				{Code: "nasdaq", Name: "纳斯达克100", NameEN: "NASDAQ-100 (CME)", Pattern: `^NASDAQ-100 Consolidated`},
				{Code: "russell", Name: "罗素2000", NameEN: "RUSSELL 2000 (CME)", Pattern: `^RUSSELL E-MINI`},
				{Code: "vix", Name: "VIX", NameEN: "VIX (CBOE)", Pattern: `^VIX FUTURES`},
			},
		},
	}
}

// DefaultExchanges tracks copper on COMEX (Yahoo tickers) and SHFE (Sina tickers).
func DefaultExchanges() []ExchangeConfig {
	return []ExchangeConfig{
		{Key: "comex", Exchange: "COMEX", Root: "HG", Suffix: ".CMX", Source: "yahoo", Unit: "USD/lb", Precision: 4},
		{Key: "shfe", Exchange: "SHFE", Root: "CU", Source: "sina", Unit: "CNY/t", Precision: 0},
	}
}
