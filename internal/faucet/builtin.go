package faucet

import "github.com/zulandar/dripyard/internal/models"

// Builtin returns the stock faucet catalog seeded on first start.
func Builtin() []models.Faucet {
	return []models.Faucet{
		builtin("cointiply", "Cointiply", "https://cointiply.com/", "#claim-button", ".captcha-container", 60),
		builtin("freebitcoin", "FreeBitco.in", "https://freebitco.in/", "#free_play_form_button", ".recaptcha-container", 60),
		builtin("firefaucet", "FireFaucet", "https://firefaucet.win/", ".claim-btn", ".captcha-box", 30),
		builtin("faucetcrypto", "FaucetCrypto", "https://faucetcrypto.com/", "#claim-button", ".captcha-wrapper", 45),
		builtin("bitcoinaliens", "Bitcoin Aliens", "https://bitcoinaliens.com/", ".claim-btn", ".captcha-container", 30),
		builtin("moonbitcoin", "Moon Bitcoin", "https://moonbit.co.in/", "#claim", ".captcha-solve", 60),
		builtin("allcoins", "AllCoins", "https://allcoins.pw/", ".claim-button", ".captcha-area", 60),
		builtin("bonusbitcoin", "Bonus Bitcoin", "https://bonusbitcoin.co/", "#claim-btn", ".captcha-section", 15),
		builtin("bitfun", "BitFun", "https://bitfun.co/", ".claim-now", ".captcha-solve", 30),
		builtin("cryptostorm", "CryptoStorm", "https://cryptostorm.is/", "#claim-button", ".captcha-box", 45),
		builtin("btcclicks", "BTC Clicks", "https://btcclicks.com/", ".claim-btn", ".captcha-container", 60),
		builtin("bitcoinfaucet", "Bitcoin Faucet", "https://bitcoinfaucet.fun/", "#claim", ".captcha-wrap", 30),
		builtin("satoshihero", "SatoshiHero", "https://satoshihero.com/", ".hero-claim", ".captcha-hero", 60),
		builtin("bitvisitors", "Bit Visitors", "https://bitvisitors.com/", ".visitor-claim", ".captcha-visitor", 30),
		builtin("bitcoinker", "Bitcoinker", "https://bitcoinker.com/", "#claim-btn", ".captcha-area", 60),
		builtin("earnbitmoon", "Earn Bit Moon", "https://earnbitmoon.club/", ".claim-btn", ".captcha-box", 30),
		builtin("claimfree", "Claim Free", "https://claimfree.co/", "#free-claim", ".captcha-section", 45),
		builtin("btcfaucet", "BTC Faucet", "https://btcfaucet.co/", ".faucet-claim", ".captcha-solve", 60),
		builtin("bitcoinpdf", "Bitcoin PDF", "https://bitcoinpdf.org/", "#pdf-claim", ".pdf-captcha", 30),
		builtin("freecoinsfaucet", "Free Coins Faucet", "https://freecoinsfaucet.com/", ".coins-claim", ".coins-captcha", 45),
		builtin("btcfree", "BTC Free", "https://btcfree.io/", "#claim-free", ".captcha-free", 60),
		builtin("cryptowin", "CryptoWin", "https://cryptowin.io/", ".win-claim", ".win-captcha", 30),
		builtin("satoshipoint", "Satoshi Point", "https://satoshipoint.com/", "#point-claim", ".point-captcha", 45),
		builtin("bitcoinblender", "Bitcoin Blender", "https://bitcoinblender.org/", ".blend-claim", ".blend-captcha", 60),
		builtin("freesatoshi", "Free Satoshi", "https://freesatoshi.com/", "#satoshi-claim", ".satoshi-captcha", 30),
		builtin("coinpayz", "Coinpayz", "https://coinpayz.eu/", ".payz-claim", ".payz-captcha", 45),
		builtin("earnbitcoin", "Earn Bitcoin", "https://earnbitcoin.world/", "#earn-claim", ".earn-captcha", 60),
		builtin("bitcoinzebra", "Bitcoin Zebra", "https://bitcoinzebra.com/", "#zebra-claim", ".zebra-captcha", 60),
		builtin("faucethub", "FaucetHub", "https://faucethub.io/", ".hub-claim", ".hub-captcha", 45),
		builtin("bitcoinday", "Bitcoin Day", "https://bitcoinday.org/", "#day-claim", ".day-captcha", 30),
		builtin("claimbtc", "Claim BTC", "https://claimbtc.com/", ".claim-btn-btc", ".claim-captcha-btc", 60),
		builtin("bitcoinflood", "Bitcoin Flood", "https://bitcoinflood.com/", "#flood-claim", ".flood-captcha", 45),
		builtin("cryptofaucets", "Crypto Faucets", "https://cryptofaucets.net/", ".crypto-claim-btn", ".crypto-captcha-box", 30),
		builtin("bitcoinget", "Bitcoin Get", "https://bitcoinget.com/", "#get-claim", ".get-captcha", 60),
		builtin("satoshispirit", "Satoshi Spirit", "https://satoshispirit.com/", ".spirit-claim", ".spirit-captcha", 45),
		builtin("freecoin", "Free Coin", "https://freecoin.io/", "#coin-free-claim", ".coin-free-captcha", 30),
		builtin("bitcoinworm", "Bitcoin Worm", "https://bitcoinworm.com/", ".worm-claim", ".worm-captcha", 60),
		builtin("satoshiforest", "Satoshi Forest", "https://satoshiforest.com/", "#forest-claim", ".forest-captcha", 45),
		builtin("bitcoinrain", "Bitcoin Rain", "https://bitcoinrain.io/", ".rain-claim-btn", ".rain-captcha-container", 30),
	}
}

func builtin(id, name, url, claimSel, captchaSel string, cooldown int) models.Faucet {
	return models.Faucet{
		ID:              id,
		Name:            name,
		URL:             url,
		ClaimSelector:   claimSel,
		CaptchaSelector: captchaSel,
		CooldownMinutes: cooldown,
		Enabled:         true,
		Builtin:         true,
	}
}
